// Package pipeline turns a datasheet, a schematic and an instruction into C
// source. A Runner extracts the register map from the datasheet, extracts pin
// assignments from the schematic (through the vision model when the schematic
// can be rendered as an image), then asks the model for code and writes it to
// the requested path.
//
// Model answers for the two extraction stages pass through the repair package
// and a schema check, so a malformed answer degrades to empty data instead of
// failing the run.
package pipeline
