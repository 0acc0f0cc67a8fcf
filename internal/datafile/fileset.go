package datafile

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// FileSet is the process-wide directory of DataFile instances, one per
// stream name. It guarantees at most one live DataFile per stream, so
// two writers can never race on the same path. Construct one per
// process (or per test) and pass it to whoever needs lookups.
type FileSet struct {
	mu     sync.Mutex
	files  map[string]*DataFile
	logger zerolog.Logger
}

// NewFileSet creates an empty file set.
func NewFileSet(logger zerolog.Logger) *FileSet {
	return &FileSet{
		files:  make(map[string]*DataFile),
		logger: logger.With().Str("component", "fileset").Logger(),
	}
}

// Register creates the DataFile for a stream and stores it keyed by
// stream name. Registering the same name again returns the existing
// instance untouched.
func (s *FileSet) Register(cfg StreamConfig, outputDir string) (*DataFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.files[cfg.Name]; ok {
		return existing, nil
	}

	df, err := New(cfg, outputDir, s.logger)
	if err != nil {
		return nil, err
	}
	s.files[cfg.Name] = df

	s.logger.Debug().
		Str("stream", cfg.Name).
		Str("file", df.Filename()).
		Msg("Data file registered")
	return df, nil
}

// Get returns the DataFile for a stream name, or nil.
func (s *FileSet) Get(name string) *DataFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.files[name]
}

// OpenAll opens every registered data file.
func (s *FileSet) OpenAll() error {
	for _, df := range s.snapshot() {
		if err := df.Open(); err != nil {
			return err
		}
	}
	return nil
}

// OpenRecurring opens only the data files of recurring streams.
// One-shot streams are opened lazily, right before their single
// execution, so Exists can still detect a run from a previous process
// lifetime before Open truncates the file.
func (s *FileSet) OpenRecurring() error {
	for _, df := range s.snapshot() {
		if df.Once() {
			continue
		}
		if err := df.Open(); err != nil {
			return err
		}
	}
	return nil
}

// CloseAll closes every currently-open data file. The first error is
// returned after all files have been attempted.
func (s *FileSet) CloseAll() error {
	var firstErr error
	for _, df := range s.snapshot() {
		if !df.IsOpen() {
			continue
		}
		if err := df.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Names returns the registered stream names, sorted.
func (s *FileSet) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.files))
	for name := range s.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered streams.
func (s *FileSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

func (s *FileSet) snapshot() []*DataFile {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*DataFile, 0, len(s.files))
	for _, df := range s.files {
		out = append(out, df)
	}
	return out
}
