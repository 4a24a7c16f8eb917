package dump

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ID identifies the dump.
type ID struct {
	// Label of the environment, e.g. 'local' or 'staging'. Must not contain
	// separator.
	Label string
	// Chain height the state was dumped at.
	Height uint32
}

// String returns ID in the form used in file names.
func (x ID) String() string {
	return x.Label + sep + strconv.FormatUint(uint64(x.Height), 10)
}

func (x *ID) decodeString(s string) error {
	label, rest, ok := strings.Cut(s, sep)
	if !ok || label == "" {
		return fmt.Errorf("expected '%s'-separated label and height", sep)
	}

	height, _, _ := strings.Cut(rest, sep)

	n, err := strconv.ParseUint(height, 10, 32)
	if err != nil {
		return fmt.Errorf("decode height from '%s': %w", height, err)
	}

	x.Label = label
	x.Height = uint32(n)

	return nil
}

var encoding = base64.StdEncoding

// contractEntry is a JSON description of the dumped contract.
type contractEntry struct {
	Name string `json:"name"`
	Hash string `json:"hash"`
}

type streams struct {
	contracts, storage io.ReadWriteCloser
}

func (x *streams) close() {
	if x.storage != nil {
		_ = x.storage.Close()
	}
	if x.contracts != nil {
		_ = x.contracts.Close()
	}
}

const (
	sep               = "-"
	contractsSuffix   = "contracts.json"
	storageFileSuffix = "storage.csv"
)

func dumpPath(dir string, id ID, suffix string) string {
	return filepath.Join(dir, id.String()+sep+suffix)
}

// openStreams opens files of the dump in dir. Files are created for writing
// unless read is set, existing dumps are never overwritten.
func openStreams(s *streams, dir string, id ID, read bool) error {
	flag, perm := os.O_RDONLY, os.FileMode(0)
	if !read {
		flag, perm = os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600
	}

	var err error

	s.storage, err = os.OpenFile(dumpPath(dir, id, storageFileSuffix), flag, perm)
	if err != nil {
		return fmt.Errorf("open storage file: %w", err)
	}

	s.contracts, err = os.OpenFile(dumpPath(dir, id, contractsSuffix), flag, perm)
	if err != nil {
		s.close()
		return fmt.Errorf("open contracts file: %w", err)
	}

	return nil
}
