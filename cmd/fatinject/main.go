// Command fatinject batch-injects files into a pseudoFAT image from a CSV
// manifest: a repeatable way to seed test images without
// hand-writing clusters. Failed rows are collected and reported together
// rather than aborting on the first bad one.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/gocarina/gocsv"
	"github.com/hashicorp/go-multierror"
	"github.com/urfave/cli/v2"

	"github.com/pseudofat/fatdefrag/codec"
	"github.com/pseudofat/fatdefrag/image"
)

// manifestRow is one line of the injection manifest: a source file to read,
// the name it should take in the image's root directory, and an optional
// hint about where the caller expects it to land (purely informational;
// AppendFile's first-fit allocator decides the real placement).
type manifestRow struct {
	SourcePath      string `csv:"source_path"`
	FileName        string `csv:"file_name"`
	DestClusterHint int    `csv:"dest_cluster_hint"`
}

func main() {
	app := &cli.App{
		Name:  "fatinject",
		Usage: "batch-inject files into a pseudoFAT image from a CSV manifest",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "input", Required: true, Usage: "existing image to load, or empty to start fresh"},
			&cli.StringFlag{Name: "output", Required: true},
			&cli.StringFlag{Name: "manifest", Required: true},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	img, err := loadOrCreate(c.String("input"))
	if err != nil {
		return fmt.Errorf("loading base image: %w", err)
	}

	manifestFile, err := os.Open(c.String("manifest"))
	if err != nil {
		return fmt.Errorf("opening manifest: %w", err)
	}
	defer manifestFile.Close()

	var rows []manifestRow
	if err := gocsv.UnmarshalFile(manifestFile, &rows); err != nil {
		return fmt.Errorf("parsing manifest: %w", err)
	}

	var failures *multierror.Error
	injected := 0
	for i, row := range rows {
		if err := injectRow(img, row); err != nil {
			failures = multierror.Append(failures, fmt.Errorf("row %d (%s): %w", i, row.FileName, err))
			continue
		}
		injected++
	}

	out, err := os.Create(c.String("output"))
	if err != nil {
		return fmt.Errorf("creating output: %w", err)
	}
	defer out.Close()

	if err := codec.Encode(img, out); err != nil {
		return fmt.Errorf("writing image: %w", err)
	}

	log.Printf("injected %d/%d file(s)", injected, len(rows))
	if failures != nil {
		return failures
	}
	return nil
}

func loadOrCreate(path string) (*image.Image, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return image.New("fatinject volume", 12, 2, 512, 512, 0, "OK")
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return codec.Decode(f)
}

func injectRow(img *image.Image, row manifestRow) error {
	data, err := os.ReadFile(row.SourcePath)
	if err != nil {
		return fmt.Errorf("reading source: %w", err)
	}

	_, err = img.AppendFile(row.FileName, 1, "rw-", data)
	if err != nil {
		return fmt.Errorf("appending to image: %w", err)
	}
	return nil
}
