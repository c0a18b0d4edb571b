// Package sampler writes a small, related set of CSV files (owners, animals
// and their pets) for trying the pipeline end to end.
package sampler

import (
	"encoding/binary"
	"encoding/csv"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// SubDir is the directory Generate creates under its target.
const SubDir = "pet-owners"

const (
	ownerCount      = 100
	animalCount     = 18
	maxPetsPerOwner = 5
	maxPetAgeYears  = 7
)

// File is one written file.
type File struct {
	Path string
	Rows int
}

// Result lists what Generate wrote.
type Result struct {
	Dir   string
	Files []File
}

// Generate writes owners.csv, animals.csv and pets.csv under dir/pet-owners,
// creating directories as needed and overwriting existing files. The same
// seed produces the same ids, names and choices; birth dates are relative to
// today.
func Generate(dir string, seed uint64) (Result, error) {
	return generate(dir, seed, time.Now())
}

type owner struct{ id, name, zipcode string }

type animal struct{ id, kind, subtype string }

func generate(dir string, seed uint64, now time.Time) (Result, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Result{}, err
	}
	out := filepath.Join(abs, SubDir)
	if err := os.MkdirAll(out, 0o755); err != nil {
		return Result{}, fmt.Errorf("sampler: %w", err)
	}

	g := newGen(seed)

	owners := make([]owner, ownerCount)
	ownerRows := make([][]string, ownerCount)
	for i := range owners {
		owners[i] = owner{id: g.uuid(), name: g.pick(firstNames) + " " + g.pick(lastNames), zipcode: g.zipcode()}
		ownerRows[i] = []string{owners[i].id, owners[i].name, owners[i].zipcode}
	}

	animals := make([]animal, animalCount)
	animalRows := make([][]string, animalCount)
	for i := range animals {
		kind := g.pick(animalKinds)
		animals[i] = animal{id: g.uuid(), kind: kind, subtype: g.pick(animalSubtypes[kind])}
		animalRows[i] = []string{animals[i].id, animals[i].kind, animals[i].subtype}
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	span := int(today.Sub(today.AddDate(-maxPetAgeYears, 0, 0)).Hours() / 24)
	var petRows [][]string
	for _, o := range owners {
		n := 1 + g.rng.IntN(maxPetsPerOwner)
		for range n {
			a := animals[g.rng.IntN(len(animals))]
			dob := today.AddDate(0, 0, -1-g.rng.IntN(span))
			petRows = append(petRows, []string{g.uuid(), o.id, a.id, g.pick(petNames), dob.Format(time.DateOnly)})
		}
	}

	res := Result{Dir: out}
	for _, f := range []struct {
		name    string
		headers []string
		rows    [][]string
	}{
		{"owners.csv", []string{"id", "name", "zipcode"}, ownerRows},
		{"animals.csv", []string{"id", "type", "subtype"}, animalRows},
		{"pets.csv", []string{"id", "owner_id", "animal_id", "name", "dob"}, petRows},
	} {
		p := filepath.Join(out, f.name)
		if err := writeCSV(p, f.headers, f.rows); err != nil {
			return res, err
		}
		res.Files = append(res.Files, File{Path: p, Rows: len(f.rows)})
	}
	return res, nil
}

func writeCSV(path string, headers []string, rows [][]string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("sampler: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("sampler: close %s: %w", path, cerr)
		}
	}()

	w := csv.NewWriter(f)
	if err := w.Write(headers); err != nil {
		return fmt.Errorf("sampler: write %s: %w", path, err)
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("sampler: write %s: %w", path, err)
	}
	return nil
}

// gen draws every random value from one ChaCha8 stream so a seed fixes the
// whole data set, uuids included.
type gen struct {
	src *rand.ChaCha8
	rng *rand.Rand
}

func newGen(seed uint64) *gen {
	var key [32]byte
	binary.LittleEndian.PutUint64(key[:], seed)
	src := rand.NewChaCha8(key)
	return &gen{src: src, rng: rand.New(src)}
}

func (g *gen) uuid() string {
	id, err := uuid.NewRandomFromReader(g.src)
	if err != nil {
		// ChaCha8.Read never fails.
		panic(err)
	}
	return id.String()
}

func (g *gen) pick(from []string) string {
	return from[g.rng.IntN(len(from))]
}

func (g *gen) zipcode() string {
	z := strconv.Itoa(10000 + g.rng.IntN(90000))
	if g.rng.IntN(4) == 0 {
		z += fmt.Sprintf("-%04d", g.rng.IntN(10000))
	}
	return z
}
