package ubireader

import (
	"encoding/binary"
	"fmt"

	"github.com/elektrischermoench/ubi-reader/pkg/fscrypt"
	"github.com/elektrischermoench/ubi-reader/pkg/ubifs"
)

// xattrNameEncryptionContext is the fixed xattr name fscrypt v1 stores
// an inode's encryption context under.
const xattrNameEncryptionContext = "c"

// walker drives the inode-map walk built by ubifs.Walk into a stream
// of Events, resolving paths, hard links, and fscrypt v1 decryption
// along the way.
type walker struct {
	tree *ubifs.Tree
	em   Emitter
	opts Options

	// seenInode maps an already-emitted multi-link inode to the path of
	// its first DENT, so later DENTs for the same inode emit Hardlink.
	seenInode map[uint32]string
}

func (w *walker) entry(inum uint32) (*ubifs.InodeEntry, error) {
	e, ok := w.tree.Inodes[inum]
	if !ok || e.Inode == nil {
		return nil, fmt.Errorf("ubireader: inode %d not found", inum)
	}
	return e, nil
}

// encryptionContext returns the fscrypt Context stored on entry's "c"
// xattr, or nil if the inode isn't encrypted.
func (w *walker) encryptionContext(entry *ubifs.InodeEntry) (*fscrypt.Context, error) {
	for _, d := range entry.Dents {
		if d.IsXattr && string(d.Name) == xattrNameEncryptionContext {
			xe, ok := w.tree.Inodes[d.Inum]
			if !ok || xe.Inode == nil {
				return nil, fmt.Errorf("ubireader: xattr inode %d missing", d.Inum)
			}
			raw, err := ubifs.ReassembleInline(xe.Inode)
			if err != nil {
				return nil, err
			}
			return fscrypt.ParseContext(raw)
		}
	}
	return nil, nil
}

// fileKey derives the per-file key for ctx, or returns an error if no
// master key is configured / it doesn't match.
func (w *walker) fileKey(ctx *fscrypt.Context) (fscrypt.FileKey, error) {
	var key fscrypt.FileKey
	if len(w.opts.MasterKey) == 0 {
		return key, fmt.Errorf("ubireader: no master key configured")
	}
	if err := fscrypt.VerifyMasterKey(ctx, w.opts.MasterKey); err != nil {
		return key, err
	}
	return fscrypt.DeriveFileKey(w.opts.MasterKey, ctx.Nonce)
}

// decodeName returns a dent's name, decrypted under dirKey if dirCtx is
// non-nil; on any decryption failure it falls back to the base64
// rendering so the traversal remains total.
func (w *walker) decodeName(d *ubifs.DentNode, dirCtx *fscrypt.Context) string {
	if dirCtx == nil {
		return string(d.Name)
	}

	key, err := w.fileKey(dirCtx)
	if err != nil {
		return fscrypt.UndecryptableFilename(d.Name)
	}

	plain, err := fscrypt.DecryptFilename(key.FilenamesKey(), d.Name)
	if err != nil {
		return fscrypt.UndecryptableFilename(d.Name)
	}
	return string(plain)
}

// emitDir recursively walks directory inum, emitting its own Dir event
// and then every child.
func (w *walker) emitDir(inum uint32, dirPath string, ctx *fscrypt.Context) error {
	entry, err := w.entry(inum)
	if err != nil {
		return err
	}

	dispatch(w.em, Event{Kind: KindDir, Path: dirPath, Inum: inum})

	dirCtx := ctx
	if selfCtx, cerr := w.encryptionContext(entry); cerr == nil && selfCtx != nil {
		dirCtx = selfCtx
	}

	for _, d := range entry.Dents {
		if d.IsXattr {
			continue
		}

		name := w.decodeName(d, dirCtx)
		childPath, err := joinPath(dirPath, name)
		if err != nil {
			dispatch(w.em, Event{Kind: KindWarning, WarningKind: WarnOrphanInode, Detail: err.Error()})
			continue
		}

		childEntry, ok := w.tree.Inodes[d.Inum]
		if !ok || childEntry.Inode == nil {
			dispatch(w.em, Event{
				Kind:        KindWarning,
				WarningKind: WarnOrphanInode,
				Path:        childPath,
				Detail:      fmt.Sprintf("dent names missing inode %d", d.Inum),
			})
			continue
		}

		if err := w.emitChild(childPath, d.Inum, childEntry); err != nil {
			return err
		}
	}

	return nil
}

func (w *walker) emitChild(childPath string, inum uint32, entry *ubifs.InodeEntry) error {
	ino := entry.Inode

	// Hard link detection only applies outside directories: UBIFS
	// directories carry nlink counts reflecting their subdirectories'
	// ".." entries, not shared DENTs.
	if !ino.IsDir() && ino.NLink > 1 {
		if firstPath, seen := w.seenInode[inum]; seen {
			dispatch(w.em, Event{Kind: KindHardlink, Path: childPath, Inum: inum, TargetPath: firstPath})
			return nil
		}
		w.seenInode[inum] = childPath
	}

	switch {
	case ino.IsDir():
		return w.emitDir(inum, childPath, nil)

	case ino.IsRegular():
		return w.emitFile(childPath, entry)

	case ino.IsSymlink():
		return w.emitSymlink(childPath, entry)

	case ino.IsBlockDev(), ino.IsCharDev():
		return w.emitDevice(childPath, entry)

	case ino.IsFifo():
		dispatch(w.em, Event{Kind: KindFifo, Path: childPath, Inum: inum})
		return nil

	case ino.IsSocket():
		if w.opts.UseDummySocketFile {
			dispatch(w.em, Event{Kind: KindFile, Path: childPath, Inum: inum})
			return nil
		}
		dispatch(w.em, Event{Kind: KindSock, Path: childPath, Inum: inum})
		return nil
	}

	return nil
}

func (w *walker) emitFile(childPath string, entry *ubifs.InodeEntry) error {
	body, err := ubifs.ReassembleFile(entry)
	if err != nil {
		return err
	}

	ctx, cerr := w.encryptionContext(entry)
	if cerr == nil && ctx != nil {
		key, kerr := w.fileKey(ctx)
		if kerr != nil {
			dispatch(w.em, Event{Kind: KindWarning, WarningKind: WarnDecryptError, Path: childPath, Detail: kerr.Error()})
		} else {
			decrypted := make([]byte, 0, len(body))
			for off := 0; off < len(body); off += ubifs.BlockSize {
				end := off + ubifs.BlockSize
				if end > len(body) {
					end = len(body)
				}
				block := body[off:end]
				if len(block) < ubifs.BlockSize {
					padded := make([]byte, ubifs.BlockSize)
					copy(padded, block)
					block = padded
				}
				plain, derr := fscrypt.DecryptBlock(key.ContentsKey(), uint32(off/ubifs.BlockSize), block)
				if derr != nil {
					dispatch(w.em, Event{Kind: KindWarning, WarningKind: WarnDecryptError, Path: childPath, Detail: derr.Error()})
					decrypted = nil
					break
				}
				decrypted = append(decrypted, plain...)
			}
			if decrypted != nil {
				if uint64(len(decrypted)) > entry.Inode.Size {
					decrypted = decrypted[:entry.Inode.Size]
				}
				body = decrypted
			}
		}
	}

	dispatch(w.em, Event{Kind: KindFile, Path: childPath, Inum: entry.Inode.Key.Inum, Body: body})
	return nil
}

func (w *walker) emitSymlink(childPath string, entry *ubifs.InodeEntry) error {
	ino := entry.Inode

	target, err := ubifs.ReassembleInline(ino)
	if err != nil {
		return err
	}

	ctx, cerr := w.encryptionContext(entry)
	if cerr == nil && ctx != nil {
		key, kerr := w.fileKey(ctx)
		if kerr != nil {
			dispatch(w.em, Event{Kind: KindWarning, WarningKind: WarnDecryptError, Path: childPath, Detail: kerr.Error()})
		} else if plain, derr := fscrypt.DecryptFilename(key.FilenamesKey(), target); derr == nil {
			target = plain
		} else {
			dispatch(w.em, Event{Kind: KindWarning, WarningKind: WarnDecryptError, Path: childPath, Detail: derr.Error()})
		}
	}

	dispatch(w.em, Event{Kind: KindSymlink, Path: childPath, Inum: ino.Key.Inum, Target: string(target)})
	return nil
}

func (w *walker) emitDevice(childPath string, entry *ubifs.InodeEntry) error {
	ino := entry.Inode

	var packed uint32
	if len(ino.Data) >= 4 {
		packed = binary.LittleEndian.Uint32(ino.Data[:4])
	}
	major := packed >> 8
	minor := packed & 0xFF

	if w.opts.UseDummyDevices {
		dispatch(w.em, Event{Kind: KindFile, Path: childPath, Inum: ino.Key.Inum, Body: ino.Data})
		return nil
	}

	dispatch(w.em, Event{
		Kind: KindDevice, Path: childPath, Inum: ino.Key.Inum,
		Major: major, Minor: minor, BlockDevice: ino.IsBlockDev(),
	})
	return nil
}
