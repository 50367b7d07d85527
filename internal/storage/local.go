package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrMissingCommunity is returned when a destination is resolved without
// the required community context. No bytes are written in that case.
var ErrMissingCommunity = errors.New("missing required community context")

// Destination is the declared context of an upload, used to derive the
// on-disk directory. EntityType is expected to be validated upstream by
// the admission filter; EntityID zero means no entity context.
type Destination struct {
	CommunityID int64
	EntityType  string
	EntityID    int64
	Category    string
}

// LocalStorage keeps uploaded bytes on the local filesystem under a
// single root directory, one subtree per community.
type LocalStorage struct {
	root string
}

func NewLocalStorage(root string) *LocalStorage {
	if root == "" {
		root = "uploads"
	}
	return &LocalStorage{root: root}
}

func (s *LocalStorage) Root() string {
	return s.root
}

func (s *LocalStorage) CommunityDir(communityID int64) string {
	return filepath.Join(s.root, "communities", strconv.FormatInt(communityID, 10))
}

// DestinationDir derives the directory for a destination without touching
// the filesystem. The layout is
// {root}/communities/{communityId}/[{entityType}/{entityId}/][{category}].
func (s *LocalStorage) DestinationDir(dest Destination) (string, error) {
	if dest.CommunityID <= 0 {
		return "", ErrMissingCommunity
	}

	dir := s.CommunityDir(dest.CommunityID)
	if dest.EntityType != "" && dest.EntityID > 0 {
		dir = filepath.Join(dir, dest.EntityType, strconv.FormatInt(dest.EntityID, 10))
	}
	if dest.Category != "" {
		dir = filepath.Join(dir, sanitizeSegment(dest.Category))
	}

	return dir, nil
}

// ResolveDestination derives the destination directory and ensures it
// exists. Creation is idempotent and safe under concurrent requests.
func (s *LocalStorage) ResolveDestination(dest Destination) (string, error) {
	dir, err := s.DestinationDir(dest)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating upload directory: %w", err)
	}
	return dir, nil
}

var disallowedChars = regexp.MustCompile(`[^A-Za-z0-9.\-]`)

// StoredName derives the collision-resistant on-disk name for a
// client-supplied file name: disallowed characters become underscores and
// a millisecond timestamp plus a random base36 token are appended before
// the extension. Collisions require the same millisecond and the same
// token, which is treated as negligible rather than impossible.
func StoredName(originalName string) string {
	name := disallowedChars.ReplaceAllString(filepath.Base(originalName), "_")
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	return fmt.Sprintf("%s_%d_%s%s", base, time.Now().UnixMilli(), randomToken(6), ext)
}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

func randomToken(length int) string {
	token := make([]byte, length)
	for i := range token {
		token[i] = base36[rand.Intn(len(base36))]
	}
	return string(token)
}

// sanitizeSegment keeps free-form path segments (the category) from
// escaping the destination directory.
func sanitizeSegment(segment string) string {
	return disallowedChars.ReplaceAllString(strings.ReplaceAll(segment, ".", "_"), "_")
}

// Save streams src to {dir}/{storedName} and returns the written path and
// byte count. A partially written file is removed on copy failure.
func (s *LocalStorage) Save(dir, storedName string, src io.Reader) (string, int64, error) {
	path := filepath.Join(dir, storedName)

	dst, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("creating file: %w", err)
	}

	written, err := io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("writing file: %w", err)
	}

	return path, written, nil
}

// Remove deletes the byte content at path. A file that is already gone is
// not an error.
func (s *LocalStorage) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *LocalStorage) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// WalkCommunity visits every regular file under the community's subtree.
// A community with no directory yet is an empty walk, not an error.
// Directories themselves are never visited or removed.
func (s *LocalStorage) WalkCommunity(communityID int64, visit func(path, name string) error) error {
	root := s.CommunityDir(communityID)
	if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		return visit(path, entry.Name())
	})
}
