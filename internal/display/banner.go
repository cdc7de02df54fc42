package display

import (
	_ "embed"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/term"
)

//go:embed banner.txt
var bannerRaw string

// RenderBanner returns the banner art as one block centred for the
// current terminal width. Replace banner.txt to change it.
func RenderBanner() string {
	art := strings.TrimRight(bannerRaw, "\n")
	if art == "" {
		return ""
	}

	block := lipgloss.Width(art)
	pad := ""
	if w := termWidth(); w > block {
		pad = strings.Repeat(" ", (w-block)/2)
	}

	var b strings.Builder
	for _, l := range strings.Split(art, "\n") {
		b.WriteString(pad)
		b.WriteString(BannerStyle.Render(l))
		b.WriteByte('\n')
	}
	return b.String()
}

// termWidth returns the terminal column count, or 80.
func termWidth() int {
	if w, _, err := term.GetSize(os.Stdout.Fd()); err == nil && w > 0 {
		return w
	}
	return 80
}
