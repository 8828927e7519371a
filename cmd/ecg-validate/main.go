// Command ecg-validate checks that every .npz record under a directory can be
// loaded, and prints its shape, sampling rate and leads.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/banshee-data/ecg.report/internal/catalog"
)

var src = flag.String("src", "data", "Directory of .npz records")

// validate writes the report for root to w and returns the number of bad files.
func validate(w io.Writer, root string) (int, error) {
	reports, err := catalog.Validate(root)
	if err != nil {
		return 0, err
	}
	if len(reports) == 0 {
		fmt.Fprintf(w, "No .npz files found in %s\n", root)
		return 0, nil
	}
	return catalog.WriteReport(w, reports)
}

func main() {
	flag.Parse()

	bad, err := validate(os.Stdout, *src)
	if err != nil {
		log.Fatalf("validate failed: %v", err)
	}
	if bad > 0 {
		os.Exit(1)
	}
}
