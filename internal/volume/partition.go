package volume

import (
	"errors"
	"fmt"
)

// DefaultRoutesPerVolume is the batch size used when no policy is set.
const DefaultRoutesPerVolume = 12

// ErrConflictingPolicy is returned when both a batch size and a volume count are given.
var ErrConflictingPolicy = errors.New("routes per volume and total volumes are mutually exclusive")

// Policy decides how routes are split into volumes. At most one field may
// be set; with neither, DefaultRoutesPerVolume applies.
type Policy struct {
	RoutesPerVolume int
	TotalVolumes    int
}

// Validate checks the policy.
func (p Policy) Validate() error {
	if p.RoutesPerVolume < 0 || p.TotalVolumes < 0 {
		return fmt.Errorf("invalid volume policy: negative value")
	}
	if p.RoutesPerVolume > 0 && p.TotalVolumes > 0 {
		return ErrConflictingPolicy
	}
	return nil
}

// Size returns how many routes each volume holds when total routes are split.
func (p Policy) Size(total int) int {
	switch {
	case p.RoutesPerVolume > 0:
		return p.RoutesPerVolume
	case p.TotalVolumes > 0:
		size := (total + p.TotalVolumes - 1) / p.TotalVolumes
		if size < 1 {
			size = 1
		}
		return size
	default:
		return DefaultRoutesPerVolume
	}
}

// Volume is a contiguous run of routes merged into one document.
type Volume struct {
	Number int // 1-based
	Routes []Route
}

// First returns the route code of the first route.
func (v Volume) First() string {
	if len(v.Routes) == 0 {
		return ""
	}
	return v.Routes[0].Name
}

// Last returns the route code of the last route.
func (v Volume) Last() string {
	if len(v.Routes) == 0 {
		return ""
	}
	return v.Routes[len(v.Routes)-1].Name
}

// OutputName is the file name of the merged volume.
func (v Volume) OutputName() string {
	return fmt.Sprintf("野外手图_第%d册_%s-%s.docx", v.Number, v.First(), v.Last())
}

// Partition splits routes, already in route order, into volumes. Volumes
// that would come out empty are not returned.
func Partition(routes []Route, p Policy) ([]Volume, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	size := p.Size(len(routes))
	var out []Volume
	for start := 0; start < len(routes); start += size {
		end := min(start+size, len(routes))
		out = append(out, Volume{Number: len(out) + 1, Routes: routes[start:end:end]})
	}
	return out, nil
}
