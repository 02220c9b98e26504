package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/quantarax/relay/internal/protocol"
)

// sendFile pairs a FileDescriptor with the absolute path to read it
// from, so the streaming loop never has to re-derive one from the
// other.
type sendFile struct {
	desc protocol.FileDescriptor
	path string
}

// buildFileList expands filePaths into the flat list of files a
// FileOffer describes. A directory argument contributes every regular
// file beneath it with a RelativePath rooted at the directory's own
// name, so the receiver reconstructs the same folder layout (§3 File
// descriptor).
func buildFileList(filePaths []string) ([]sendFile, error) {
	var out []sendFile
	for _, p := range filePaths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, newError(ErrorKindTransfer, fmt.Errorf("stat %s: %w", p, err))
		}
		if !info.IsDir() {
			out = append(out, sendFile{
				desc: protocol.FileDescriptor{Name: info.Name(), Size: uint64(info.Size())},
				path: p,
			})
			continue
		}

		base := filepath.Base(p)
		walkErr := filepath.Walk(p, func(walked string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if fi.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(p, walked)
			if err != nil {
				return err
			}
			relSlash := filepath.ToSlash(filepath.Join(base, rel))
			out = append(out, sendFile{
				desc: protocol.FileDescriptor{Name: fi.Name(), Size: uint64(fi.Size()), RelativePath: relSlash},
				path: walked,
			})
			return nil
		})
		if walkErr != nil {
			return nil, newError(ErrorKindTransfer, fmt.Errorf("walk %s: %w", p, walkErr))
		}
	}
	return out, nil
}

// descriptorsOf projects a sendFile slice to the wire-level
// FileDescriptor list carried by FileOffer.
func descriptorsOf(files []sendFile) []protocol.FileDescriptor {
	descs := make([]protocol.FileDescriptor, len(files))
	for i, f := range files {
		descs[i] = f.desc
	}
	return descs
}

// destinationPath resolves where a received file belongs under
// saveDir, validating its RelativePath first.
func destinationPath(saveDir string, desc protocol.FileDescriptor) (string, error) {
	if desc.RelativePath != "" {
		clean, err := sanitizeRelativePath(desc.RelativePath)
		if err != nil {
			return "", newError(ErrorKindTransfer, err)
		}
		return filepath.Join(saveDir, filepath.FromSlash(clean)), nil
	}
	name, err := sanitizeRelativePath(desc.Name)
	if err != nil {
		return "", newError(ErrorKindTransfer, err)
	}
	return filepath.Join(saveDir, filepath.FromSlash(name)), nil
}

// firstInvalidDescriptor validates every descriptor in files against
// saveDir and returns the first one that fails, so a receiver can
// reject an entire offer before accepting any of it rather than
// discovering a bad descriptor mid-transfer (§3, §9: "a single bad
// descriptor fails the whole offer, not per-file").
func firstInvalidDescriptor(saveDir string, files []protocol.FileDescriptor) (string, error) {
	for _, desc := range files {
		if _, err := destinationPath(saveDir, desc); err != nil {
			return desc.Name, err
		}
	}
	return "", nil
}
