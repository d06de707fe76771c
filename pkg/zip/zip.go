// Package zip builds the downloadable listing-pack archive: the generated
// marketing images plus the A+ content JSON.
package zip

import (
	"archive/zip"
	"bytes"
)

// Asset is one exportable entry of a listing pack. Filename is the path
// inside the archive, e.g. "images/MAIN_IMAGE.png" or "aplus.json".
type Asset struct {
	Filename string
	MIME     string
	Data     []byte
}

// ArchiveAssets packs the assets into an in-memory ZIP. Entries that cannot
// be created are skipped; a write failure aborts and returns nil since a
// truncated pack is worse than no pack.
func ArchiveAssets(assets []Asset) []byte {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, asset := range assets {
		w, err := zw.Create(asset.Filename)
		if err != nil {
			continue
		}
		if _, err := w.Write(asset.Data); err != nil {
			return nil
		}
	}
	_ = zw.Close()
	return buf.Bytes()
}
