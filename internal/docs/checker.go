package docs

import "github.com/phrazzld/firmgen/internal/config"

// ToolStatus reports which external tools are installed.
type ToolStatus struct {
	Magick      bool `json:"imagemagick"`
	Ghostscript bool `json:"ghostscript"`
	Pdftoppm    bool `json:"pdftoppm"`
	Pdftotext   bool `json:"pdftotext"`
	Tesseract   bool `json:"tesseract"`

	// CanConvert is true when at least one PDF-to-image converter is present
	CanConvert bool `json:"can_convert"`
}

// Checker looks up the configured tools on PATH.
type Checker struct {
	tools  config.ToolsConfig
	runner Runner
}

// NewChecker creates a Checker. A nil runner uses ExecRunner.
func NewChecker(tools config.ToolsConfig, runner Runner) *Checker {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Checker{tools: tools, runner: runner}
}

// Available reports the installation status of every tool.
func (c *Checker) Available() ToolStatus {
	has := func(bin string) bool {
		_, err := c.runner.LookPath(bin)
		return err == nil
	}
	st := ToolStatus{
		Magick:      has(c.tools.Magick),
		Ghostscript: has(c.tools.Ghostscript),
		Pdftoppm:    has(c.tools.Pdftoppm),
		Pdftotext:   has(c.tools.Pdftotext),
		Tesseract:   has(c.tools.Tesseract),
	}
	st.CanConvert = st.Magick || st.Ghostscript || st.Pdftoppm
	return st
}
