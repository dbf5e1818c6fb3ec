// Command pseudofat is the top-level driver: read/check an image, optionally
// defragment it, and write the result.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pseudofat/fatdefrag/cache"
	"github.com/pseudofat/fatdefrag/checker"
	"github.com/pseudofat/fatdefrag/codec"
	"github.com/pseudofat/fatdefrag/defrag"
	"github.com/pseudofat/fatdefrag/dump"
	"github.com/pseudofat/fatdefrag/image"
	"github.com/pseudofat/fatdefrag/profiles"
)

// Exit codes returned to the shell.
const (
	exitSuccess          = 0
	exitLoadFailure      = 1
	exitCheckFailure     = 2
	exitDefragFailure    = 3
	exitWriteFailure     = 4
	exitModeNotSpecified = 5
)

func main() {
	app := &cli.App{
		Name:  "pseudofat",
		Usage: "inspect, check and defragment pseudoFAT disk images",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "verbose", Value: 0, Usage: "0, 1 or 2"},
			&cli.BoolFlag{Name: "force-accept-recoverable-errors"},
			&cli.BoolFlag{Name: "enable-badblock-matching"},
		},
		Commands: []*cli.Command{
			readCommand(),
			defragmentCommand(),
			createCommand(),
		},
		Action: func(c *cli.Context) error {
			return cli.Exit("a mode must be specified: read, defragment or create", exitModeNotSpecified)
		},
	}

	if err := app.Run(os.Args); err != nil {
		if exitErr, ok := err.(cli.ExitCoder); ok {
			log.Print(exitErr.Error())
			os.Exit(exitErr.ExitCode())
		}
		log.Print(err.Error())
		os.Exit(exitLoadFailure)
	}
}

func verboseLevel(c *cli.Context) int {
	if c.IsSet("verbose") {
		return c.Int("verbose")
	}
	return c.Parent().Int("verbose")
}

func checkerOptions(c *cli.Context) checker.Options {
	force := c.Bool("force-accept-recoverable-errors") || c.Parent().Bool("force-accept-recoverable-errors")
	badblock := c.Bool("enable-badblock-matching") || c.Parent().Bool("enable-badblock-matching")
	return checker.Options{
		AllowBadblockMatching:        badblock,
		ForceAcceptRecoverableErrors: force,
	}
}

func loadImage(path string, verbose int) (*image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if verbose >= 1 {
		log.Printf("loading image from %s", path)
	}
	img, err := codec.Decode(f)
	if err != nil {
		return nil, err
	}
	if verbose >= 2 {
		out, dumpErr := dump.Sprint(img)
		if dumpErr == nil {
			log.Printf("cluster map:\n%s", out)
		}
	}
	return img, nil
}

func writeImage(img *image.Image, path string, dryRun bool, verbose int) error {
	if dryRun {
		if verbose >= 1 {
			log.Printf("dry-run: not writing %s", path)
		}
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if verbose >= 1 {
		log.Printf("writing image to %s", path)
	}
	return codec.Encode(img, f)
}

func readCommand() *cli.Command {
	return &cli.Command{
		Name:  "read",
		Usage: "load an image, run the checker, print a summary",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "input", Required: true},
		},
		Action: func(c *cli.Context) error {
			verbose := verboseLevel(c)
			img, err := loadImage(c.String("input"), verbose)
			if err != nil {
				return cli.Exit(err, exitLoadFailure)
			}

			divergences, err := checker.Check(img, checkerOptions(c))
			if err != nil {
				return cli.Exit(err, exitCheckFailure)
			}
			if divergences != nil && divergences.Len() > 0 {
				log.Printf("check: %d recoverable divergence(s) recorded", divergences.Len())
			}

			fmt.Printf("volume ok, %d file(s), %d cluster(s)\n", len(img.RootDir), img.Boot.ClusterCount)
			return nil
		},
	}
}

func defragmentCommand() *cli.Command {
	return &cli.Command{
		Name:  "defragment",
		Usage: "check, defragment and rewrite an image",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "input", Required: true},
			&cli.StringFlag{Name: "output", Required: true},
			&cli.IntFlag{Name: "workers", Value: 1, Usage: "1-16, out of range falls back to 1"},
			&cli.BoolFlag{Name: "dry-run"},
		},
		Action: func(c *cli.Context) error {
			verbose := verboseLevel(c)
			img, err := loadImage(c.String("input"), verbose)
			if err != nil {
				return cli.Exit(err, exitLoadFailure)
			}

			if _, err := checker.Check(img, checkerOptions(c)); err != nil {
				return cli.Exit(err, exitCheckFailure)
			}

			cch, err := cache.Build(img)
			if err != nil {
				return cli.Exit(err, exitCheckFailure)
			}

			workers := c.Int("workers")
			if workers < 1 || workers > 16 {
				workers = 1
			}
			if verbose >= 1 {
				log.Printf("defragmenting with %d worker(s)", workers)
			}
			if err := defrag.Run(img, cch, defrag.Options{WorkerCount: workers}); err != nil {
				return cli.Exit(err, exitDefragFailure)
			}

			if err := writeImage(img, c.String("output"), c.Bool("dry-run"), verbose); err != nil {
				return cli.Exit(err, exitWriteFailure)
			}
			return nil
		},
	}
}

func createCommand() *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "build a new, empty image from a named profile or explicit geometry",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "output", Required: true},
			&cli.StringFlag{Name: "profile", Usage: "one of: " + joinNames()},
			&cli.UintFlag{Name: "cluster-count"},
			&cli.UintFlag{Name: "cluster-size", Value: 512},
			&cli.IntFlag{Name: "fat-type", Value: 12},
			&cli.IntFlag{Name: "fat-copies", Value: 2},
			&cli.UintFlag{Name: "reserved-cluster-count"},
			&cli.StringFlag{Name: "volume-descriptor", Value: "pseudoFAT volume"},
			&cli.StringFlag{Name: "signature", Value: "OK"},
			&cli.BoolFlag{Name: "dry-run"},
		},
		Action: func(c *cli.Context) error {
			verbose := verboseLevel(c)

			var img *image.Image
			var err error
			if slug := c.String("profile"); slug != "" {
				p, lookupErr := profiles.Get(slug)
				if lookupErr != nil {
					return cli.Exit(lookupErr, exitLoadFailure)
				}
				img, err = p.NewImage(c.String("volume-descriptor"), c.String("signature"))
			} else {
				img, err = image.New(
					c.String("volume-descriptor"),
					int32(c.Int("fat-type")),
					int32(c.Int("fat-copies")),
					uint32(c.Uint("cluster-size")),
					uint32(c.Uint("cluster-count")),
					uint32(c.Uint("reserved-cluster-count")),
					c.String("signature"),
				)
			}
			if err != nil {
				return cli.Exit(err, exitLoadFailure)
			}

			if err := writeImage(img, c.String("output"), c.Bool("dry-run"), verbose); err != nil {
				return cli.Exit(err, exitWriteFailure)
			}
			return nil
		},
	}
}

func joinNames() string {
	names := profiles.Names()
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out
}
