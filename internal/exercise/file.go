package exercise

import (
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/claude/posereps/internal/models"
)

type definitionsFile struct {
	Exercises []fileDefinition `toml:"exercise"`
}

type fileDefinition struct {
	ID        string         `toml:"id"`
	Name      string         `toml:"name"`
	Kind      string         `toml:"kind"`
	Primary   []string       `toml:"primary"`
	Direction string         `toml:"direction"`
	StateUp   float64        `toml:"state_up"`
	StateDown float64        `toml:"state_down"`
	ROMMin    float64        `toml:"rom_min"`
	ROMMax    float64        `toml:"rom_max"`
	Stability *fileStability `toml:"stability"`
	Auxiliary *fileAuxiliary `toml:"auxiliary"`
	Deviation *fileDeviation `toml:"deviation"`
	Feedback  Feedback       `toml:"feedback"`
}

type fileStability struct {
	Landmark  string   `toml:"landmark"`
	Reference []string `toml:"reference"`
	Threshold float64  `toml:"threshold"`
}

type fileAuxiliary struct {
	Triad    []string `toml:"triad"`
	MinAngle float64  `toml:"min_angle"`
}

type fileDeviation struct {
	Marker  string  `toml:"marker"`
	Left    string  `toml:"left"`
	Right   string  `toml:"right"`
	Turn    float64 `toml:"turn"`
	Neutral float64 `toml:"neutral"`
}

// LoadFile reads exercise definitions from a TOML file made of [[exercise]] tables.
func LoadFile(path string) ([]Definition, error) {
	var f definitionsFile
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, fmt.Errorf("reading definitions file: %w", err)
	}
	return f.definitions(md)
}

// Decode reads exercise definitions in the same format as LoadFile.
func Decode(r io.Reader) ([]Definition, error) {
	var f definitionsFile
	md, err := toml.NewDecoder(r).Decode(&f)
	if err != nil {
		return nil, fmt.Errorf("decoding definitions: %w", err)
	}
	return f.definitions(md)
}

func (f definitionsFile) definitions(md toml.MetaData) ([]Definition, error) {
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys in definitions: %s", strings.Join(keys, ", "))
	}

	defs := make([]Definition, 0, len(f.Exercises))
	for i, fd := range f.Exercises {
		d, err := fd.definition()
		if err != nil {
			return nil, fmt.Errorf("exercise #%d: %w", i+1, err)
		}
		defs = append(defs, d)
	}
	return defs, nil
}

func (fd fileDefinition) definition() (Definition, error) {
	d := Definition{
		ID:                 fd.ID,
		Name:               fd.Name,
		Kind:               Kind(fd.Kind),
		Direction:          Direction(fd.Direction),
		StateUpThreshold:   fd.StateUp,
		StateDownThreshold: fd.StateDown,
		ROMMinThreshold:    fd.ROMMin,
		ROMMaxThreshold:    fd.ROMMax,
		Feedback:           fd.Feedback,
	}
	if d.Kind == "" {
		d.Kind = KindJointAngle
	}

	if d.Kind == KindJointAngle {
		t, err := triad(fd.Primary)
		if err != nil {
			return Definition{}, fmt.Errorf("primary: %w", err)
		}
		d.Primary = t
	}
	if s := fd.Stability; s != nil {
		if len(s.Reference) != 2 {
			return Definition{}, fmt.Errorf("stability.reference needs 2 landmarks, got %d", len(s.Reference))
		}
		d.Stability = &StabilityRule{
			Landmark:      models.LandmarkName(s.Landmark),
			ReferenceFrom: models.LandmarkName(s.Reference[0]),
			ReferenceTo:   models.LandmarkName(s.Reference[1]),
			Threshold:     s.Threshold,
		}
	}
	if a := fd.Auxiliary; a != nil {
		t, err := triad(a.Triad)
		if err != nil {
			return Definition{}, fmt.Errorf("auxiliary.triad: %w", err)
		}
		d.Auxiliary = &AuxiliaryRule{Triad: t, MinAngle: a.MinAngle}
	}
	if v := fd.Deviation; v != nil {
		d.Deviation = &DeviationRule{
			Marker:        models.LandmarkName(v.Marker),
			Left:          models.LandmarkName(v.Left),
			Right:         models.LandmarkName(v.Right),
			TurnThreshold: v.Turn,
			NeutralBand:   v.Neutral,
		}
	}
	return d, nil
}

func triad(names []string) (Triad, error) {
	if len(names) != 3 {
		return Triad{}, fmt.Errorf("need 3 landmarks, got %d", len(names))
	}
	return Triad{
		A:      models.LandmarkName(names[0]),
		Vertex: models.LandmarkName(names[1]),
		C:      models.LandmarkName(names[2]),
	}, nil
}
