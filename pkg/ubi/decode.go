package ubi

import (
	"fmt"

	"github.com/elektrischermoench/ubi-reader/pkg/blockio"
)

// Result is the outcome of decoding one UBI image: its images, grouped
// by image_seq. Volumes are resolved on demand through Volumes, and
// DominantImage picks the image with the most blocks.
type Result struct {
	Images []*Image
}

// Decode scans every PEB in br (pebCount of them), groups them into
// images and volumes, and resolves duplicate LEBs. It fails only when no
// valid blocks are found at all; per-block errors are tolerated
// according to opts.
func Decode(br *blockio.Reader, pebCount int, opts Options) (*Result, error) {
	blocks, err := ScanBlocks(br, pebCount, opts)
	if err != nil {
		return nil, err
	}

	images, err := GroupImages(blocks, opts)
	if err != nil {
		return nil, err
	}

	return &Result{Images: images}, nil
}

// Volumes returns img's blocks grouped into volumes.
func (r *Result) Volumes(img *Image, opts Options) []*Volume {
	return GroupVolumes(img, opts)
}

// DominantImage returns the image with the most blocks, the usual
// choice when a dump contains a handful of stray blocks from a prior
// flash alongside the current image.
func (r *Result) DominantImage() (*Image, error) {
	if len(r.Images) == 0 {
		return nil, fmt.Errorf("ubi: no images: no valid blocks found")
	}

	best := r.Images[0]
	for _, img := range r.Images[1:] {
		if len(img.Blocks) > len(best.Blocks) {
			best = img
		}
	}
	return best, nil
}

// VolumeByID looks up a volume by ID among vols, returning
// ErrNoVolumes-wrapped error if not found.
func VolumeByID(vols []*Volume, id uint32) (*Volume, error) {
	for _, v := range vols {
		if v.VolID == id {
			return v, nil
		}
	}
	return nil, fmt.Errorf("ubi: no volume with id %d: %w", id, ErrNoVolumes)
}

// ErrNoVolumes is returned when a volume lookup fails because the image
// has no volumes at all, or none matching the requested ID.
var ErrNoVolumes = fmt.Errorf("ubi: no volumes")
