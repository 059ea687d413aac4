package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []struct{ text, color string }{
	{" _            _    _                 ", "#818cf8"},
	{"| |_ __ _ ___| | _| |_ _ __ ___  ___ ", "#a78bfa"},
	{"| __/ _` / __| |/ / __| '__/ _ \\/ _ \\", "#c084fc"},
	{"| || (_| \\__ \\   <| |_| | |  __/  __/", "#e879f9"},
	{" \\__\\__,_|___/_|\\_\\\\__|_|  \\___|\\___|", "#f472b6"},
}

// PrintBanner writes the ASCII banner to w using the terminal's color profile.
func PrintBanner(w io.Writer) {
	p := termenv.NewOutput(w).ColorProfile()
	fmt.Fprintln(w)
	for _, l := range bannerLines {
		fmt.Fprintln(w, p.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
}
