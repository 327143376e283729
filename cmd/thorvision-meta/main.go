// Command thorvision-meta prints the per-frame acquisition metadata embedded
// in a recorded video file.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/kontex-neuro/thorvision-go/pkg/videometa"
)

func main() {
	limit := flag.Int("n", 10, "number of records to print (0 for all)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: thorvision-meta [-n count] <video.mkv>")
		os.Exit(1)
	}
	path := flag.Arg(0)

	records, err := videometa.ExtractFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to extract metadata from %s: %v\n", path, err)
		os.Exit(1)
	}
	if len(records) == 0 {
		fmt.Println("No metadata records found. The file may predate metadata embedding or carry a different format.")
		return
	}

	fmt.Printf("Extracted %d metadata records from %s\n", len(records), path)

	n := *limit
	if n <= 0 || n > len(records) {
		n = len(records)
	}
	for i, rec := range records[:n] {
		fmt.Printf("\n--- Record %d ---\n", i+1)
		fmt.Printf("  Frame PTS      : %d\n", rec.FramePTS)
		fmt.Printf("  GStreamer PTS  : %d\n", rec.GstreamerPTS)
		fmt.Printf("  XDAQ Timestamp : %d\n", rec.XDAQTimestamp)
		fmt.Printf("  Sample Index   : %d\n", rec.SampleIndex)
		fmt.Printf("  TTL In         : 0x%X\n", rec.TTLIn)
		fmt.Printf("  TTL Out        : 0x%X\n", rec.TTLOut)
	}
}
