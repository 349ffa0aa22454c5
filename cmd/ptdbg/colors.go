package main

import "github.com/fatih/color"

// Color palette for the interactive session, following the same per-role
// split the CPU debugger's colorAddr/colorReg/colorError family uses.
var (
	colorAddr       = color.New(color.FgCyan)
	colorReg        = color.New(color.FgGreen)
	colorValue      = color.New(color.FgWhite, color.Bold)
	colorPrompt     = color.New(color.FgBlue, color.Bold)
	colorError      = color.New(color.FgRed, color.Bold)
	colorSuccess    = color.New(color.FgGreen)
	colorWarning    = color.New(color.FgYellow)
	colorBreakpoint = color.New(color.FgRed, color.Bold)
	colorSourceFile = color.New(color.FgHiBlue)
)
