// Package main is the entry point for the zundamotion renderer.
package main

import (
	"os"

	"github.com/zundamotion/zundamotion/cmd/zundamotion/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
