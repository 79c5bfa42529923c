package main

import (
	"fmt"
	"os"

	"github.com/nixlim/vf-top/internal/config"
)

// RunInit writes the config file, or fills in the keys an existing one is
// missing, and prints what changed.
//
// Exit codes:
//   - 0: written, completed or already complete
//   - 1: error
func RunInit(path string) {
	out, err := config.Init(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	switch out.Result {
	case config.InitCreated:
		fmt.Printf("Created %s with default settings.\n", out.Path)
	case config.InitUpdated:
		for _, k := range out.Added {
			fmt.Printf("Added %s\n", k)
		}
		fmt.Printf("Updated %s.\n", out.Path)
	case config.InitUnchanged:
		fmt.Printf("%s already has every setting. No changes needed.\n", out.Path)
	}
	fmt.Println("Set VFTOP_TOKEN, VFTOP_API_BASE and VFTOP_SIGNAL_URL in the environment or a .env file.")
}
