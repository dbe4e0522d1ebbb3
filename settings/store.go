package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// DefaultPath is the file name used when no location is configured.
const DefaultPath = "freeimages.config.json"

// Store keeps the document as one JSON file. Load never fails: missing,
// unreadable or malformed files all yield the template, and a field of the
// wrong type falls back on its own. Update refuses to write over a file it
// could not read or parse. It serialises read-merge-write inside the
// process only; separate processes sharing the
// file still race and the last writer wins.
type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(path string) *Store {
	if path == "" {
		path = DefaultPath
	}
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Load() Document {
	doc, _ := s.load()
	return doc
}

// load is Load with the read and parse failures reported. The returned
// document is the template in those cases.
func (s *Store) load() (Document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		doc := Default()
		if err := s.Save(doc); err != nil {
			logrus.WithError(err).WithField("path", s.path).Errorln("Error creating default config file")
		}
		return doc, nil
	}
	if err != nil {
		logrus.WithError(err).WithField("path", s.path).Errorln("Error reading config file")
		return Default(), fmt.Errorf("read config: %w", err)
	}

	var stored map[string]any
	if err := json.Unmarshal(data, &stored); err != nil {
		logrus.WithError(err).WithField("path", s.path).Errorln("Error parsing config file")
		return Default(), fmt.Errorf("parse config: %w", err)
	}
	doc, err := Apply(Default(), stored)
	if err == nil {
		return doc, nil
	}
	doc, rejected := applyLeaves(Default(), stored)
	logrus.WithFields(logrus.Fields{
		"path":   s.path,
		"fields": rejected,
	}).Warnln("Ignoring config fields of the wrong type")
	return doc, nil
}

// applyLeaves merges stored into doc one leaf at a time, so a value of the
// wrong type only costs its own field. The dotted paths of skipped values
// are returned.
func applyLeaves(doc Document, stored map[string]any) (Document, []string) {
	var rejected []string
	var walk func(prefix []string, m map[string]any)
	walk = func(prefix []string, m map[string]any) {
		for k, v := range m {
			path := append(slices.Clone(prefix), k)
			if o, ok := asObject(v); ok {
				walk(path, o)
				continue
			}
			var patch any = v
			for i := len(path) - 1; i >= 0; i-- {
				patch = map[string]any{path[i]: patch}
			}
			next, err := Apply(doc, patch.(map[string]any))
			if err != nil {
				rejected = append(rejected, strings.Join(path, "."))
				continue
			}
			doc = next
		}
	}
	walk(nil, stored)
	slices.Sort(rejected)
	return doc, rejected
}

// Save overwrites the file with doc. The content goes to a sibling temporary
// file first and is renamed into place.
func (s *Store) Save(doc Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".freeimages-*.json")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close config: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

func (s *Store) Update(patch Patch) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load()
	if err != nil {
		return Document{}, fmt.Errorf("refusing to overwrite %s: %w", s.path, err)
	}
	doc, err := Apply(current, patch)
	if err != nil {
		return Document{}, err
	}
	if err := s.Save(doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}
