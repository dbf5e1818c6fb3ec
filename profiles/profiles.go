// Package profiles supplies named create-mode geometry presets so the CLI
// can accept "--profile floppy-1.44m" instead of five numeric flags. The
// catalog is a CSV table embedded into the binary.
package profiles

import (
	_ "embed"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/pseudofat/fatdefrag/image"
)

// Profile is one row of the geometry catalog: everything create mode needs
// besides the volume descriptor and signature, which are per-image.
type Profile struct {
	Slug                 string `csv:"slug"`
	Name                 string `csv:"name"`
	ClusterCount         uint32 `csv:"cluster_count"`
	ClusterSize          uint32 `csv:"cluster_size"`
	FATType              int32  `csv:"fat_type"`
	FATCopies            int32  `csv:"fat_copies"`
	ReservedClusterCount uint32 `csv:"reserved_cluster_count"`
	Notes                string `csv:"notes"`
}

// NewImage builds an empty image from the profile, using volumeDesc and
// signature ("OK" or "NOK") as the per-image fields the geometry itself
// doesn't carry.
func (p Profile) NewImage(volumeDesc, signature string) (*image.Image, error) {
	return image.New(
		volumeDesc,
		p.FATType,
		p.FATCopies,
		p.ClusterSize,
		p.ClusterCount,
		p.ReservedClusterCount,
		signature,
	)
}

//go:embed profiles.csv
var rawCSV string

var catalog map[string]Profile

func init() {
	catalog = make(map[string]Profile)
	reader := strings.NewReader(rawCSV)
	err := gocsv.UnmarshalToCallback(reader, func(row Profile) error {
		if _, exists := catalog[row.Slug]; exists {
			return fmt.Errorf("duplicate profile slug %q", row.Slug)
		}
		catalog[row.Slug] = row
		return nil
	})
	if err != nil && err != io.EOF {
		panic(fmt.Sprintf("profiles: malformed embedded catalog: %s", err))
	}
}

// Get looks up a named profile from the embedded catalog.
func Get(slug string) (Profile, error) {
	p, ok := catalog[slug]
	if !ok {
		return Profile{}, fmt.Errorf("no predefined image profile named %q", slug)
	}
	return p, nil
}

// Names returns every profile slug in the catalog, for CLI help text.
func Names() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	return names
}
