package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) > 1 {
		cmd := os.Args[1]
		switch cmd {
		case "run":
			if err := RunRunCommand(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		case "evaluate":
			if err := RunEvaluateCommand(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		case "help", "-h", "--help":
			printUsage()
			return
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
			printUsage()
			os.Exit(1)
		}
	}

	printUsage()
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  siamese [command] [arguments]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run         Train a model: run <output_folder> <model_name>")
	fmt.Println("  evaluate    Evaluate a checkpoint on the test sets: evaluate <checkpoint>")
	fmt.Println("  help        Show this help message")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("  Settings are read from $%s, or ./%s when present.\n", ConfigEnvVar, DefaultConfigFile)
	fmt.Println("  architecture: characterbert | bert | scaled characterbert concat | scaled characterbert add")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  siamese run characterbert_run1 characterbert")
	fmt.Println("  SIAMESE_CONFIG=bert.yaml siamese run bert_run1 bert")
	fmt.Println("  siamese evaluate models/bert_run1/bert_epoch3.ckpt")
	fmt.Println()
}
