package cli

import (
	"fmt"

	"github.com/fatih/color"
)

func printHeader(title string) {
	if title != "" {
		fmt.Println(color.CyanString(title))
		fmt.Println("─────────────────────")
	}
}

func printOK(format string, a ...any) {
	fmt.Println(color.GreenString("✓ ") + fmt.Sprintf(format, a...))
}

func printWarn(format string, a ...any) {
	fmt.Println(color.YellowString("! ") + fmt.Sprintf(format, a...))
}
