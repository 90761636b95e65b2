package ubireader

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/elektrischermoench/ubi-reader/pkg/ubifs"
)

func TestJoinPathRejectsTraversal(t *testing.T) {
	if _, err := joinPath("/a", ".."); err == nil {
		t.Error("expected error for .. component")
	}
	if _, err := joinPath("/a", "b/c"); err == nil {
		t.Error("expected error for embedded slash")
	}
	got, err := joinPath("/a", "b")
	if err != nil || got != "/a/b" {
		t.Errorf("expected /a/b, got %q, %v", got, err)
	}
}

// buildNode mirrors pkg/ubifs's own test helper: assembles one complete
// on-medium node with Len and CRC filled in.
func buildNode(nodeType uint8, sqnum uint64, body []byte) []byte {
	buf := new(bytes.Buffer)
	buf.Write(make([]byte, 8))
	binary.Write(buf, binary.LittleEndian, sqnum)
	binary.Write(buf, binary.LittleEndian, uint32(24+len(body)))
	buf.WriteByte(nodeType)
	buf.WriteByte(0)
	buf.Write(make([]byte, 2))
	buf.Write(body)

	full := buf.Bytes()
	binary.LittleEndian.PutUint32(full[0:4], ubifs.NodeMagic)
	crc := crc32.ChecksumIEEE(full[8:])
	binary.LittleEndian.PutUint32(full[4:8], crc)
	return full
}

func buildInodeBody(inum uint32, keyType uint32, size uint64, mode uint32, dataLen uint32, data []byte) []byte {
	buf := new(bytes.Buffer)
	key := make([]byte, 8)
	binary.LittleEndian.PutUint32(key[0:4], inum)
	binary.LittleEndian.PutUint32(key[4:8], keyType<<29)
	buf.Write(key)
	binary.Write(buf, binary.LittleEndian, uint64(1))
	binary.Write(buf, binary.LittleEndian, size)
	binary.Write(buf, binary.LittleEndian, int64(0))
	binary.Write(buf, binary.LittleEndian, int64(0))
	binary.Write(buf, binary.LittleEndian, int64(0))
	binary.Write(buf, binary.LittleEndian, uint32(0))
	binary.Write(buf, binary.LittleEndian, uint32(0))
	binary.Write(buf, binary.LittleEndian, uint32(0))
	binary.Write(buf, binary.LittleEndian, uint32(1))
	binary.Write(buf, binary.LittleEndian, uint32(0))
	binary.Write(buf, binary.LittleEndian, uint32(0))
	binary.Write(buf, binary.LittleEndian, mode)
	binary.Write(buf, binary.LittleEndian, uint32(0))
	binary.Write(buf, binary.LittleEndian, uint32(0))
	binary.Write(buf, binary.LittleEndian, dataLen)
	binary.Write(buf, binary.LittleEndian, uint32(0))
	binary.Write(buf, binary.LittleEndian, uint32(0))
	binary.Write(buf, binary.LittleEndian, uint32(0))
	binary.Write(buf, binary.LittleEndian, uint16(ubifs.ComprNone))
	binary.Write(buf, binary.LittleEndian, uint16(0))
	buf.Write(data)
	return buf.Bytes()
}

func buildDentBody(parentInum, nameHash, childInum uint32, entryType uint8, name string) []byte {
	buf := new(bytes.Buffer)
	key := make([]byte, 8)
	binary.LittleEndian.PutUint32(key[0:4], parentInum)
	binary.LittleEndian.PutUint32(key[4:8], (nameHash&0x1FFFFFFF)|(uint32(ubifs.KeyTypeDent)<<29))
	buf.Write(key)
	binary.Write(buf, binary.LittleEndian, childInum)
	buf.WriteByte(entryType)
	buf.WriteByte(0)
	binary.Write(buf, binary.LittleEndian, uint16(len(name)))
	buf.WriteString(name)
	return buf.Bytes()
}

func buildDataBody(inum, blockIdx uint32, payload []byte) []byte {
	buf := new(bytes.Buffer)
	key := make([]byte, 8)
	binary.LittleEndian.PutUint32(key[0:4], inum)
	binary.LittleEndian.PutUint32(key[4:8], blockIdx|(uint32(ubifs.KeyTypeData)<<29))
	buf.Write(key)
	binary.Write(buf, binary.LittleEndian, uint32(len(payload)))
	binary.Write(buf, binary.LittleEndian, uint16(ubifs.ComprNone))
	binary.Write(buf, binary.LittleEndian, uint16(0))
	buf.Write(payload)
	return buf.Bytes()
}

func buildBranch(lnum, offs, length uint32, key []byte) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, lnum)
	binary.Write(buf, binary.LittleEndian, offs)
	binary.Write(buf, binary.LittleEndian, length)
	buf.Write(key)
	return buf.Bytes()
}

func zeroKey() []byte { return make([]byte, 8) }

// TestDecodeBareUBIFSHelloFile covers one volume, one file named
// hello.txt, decoded down to a Dir + File event pair with the exact
// truncated body.
func TestDecodeBareUBIFSHelloFile(t *testing.T) {
	const lebSize = 16384
	fileData := []byte("Hello, UBIFS!\n")

	rootDirBody := buildInodeBody(ubifs.RootInum, uint32(ubifs.KeyTypeIno), 0, ubifs.ModeDir, 0, nil)
	rootDirRaw := buildNode(ubifs.NodeInode, 10, rootDirBody)

	dentBody := buildDentBody(ubifs.RootInum, 0, 2, ubifs.EntryReg, "hello.txt")
	dentRaw := buildNode(ubifs.NodeDent, 11, dentBody)

	fileInodeBody := buildInodeBody(2, uint32(ubifs.KeyTypeIno), uint64(len(fileData)), ubifs.ModeReg, 0, nil)
	fileInodeRaw := buildNode(ubifs.NodeInode, 12, fileInodeBody)

	dataBody := buildDataBody(2, 0, fileData)
	dataRaw := buildNode(ubifs.NodeData, 13, dataBody)

	// master node is a fixed 24-byte common header + 72-byte body.
	const masterRawLen uint32 = 96

	leaves := new(bytes.Buffer)
	rootDirOffs := masterRawLen + uint32(leaves.Len())
	leaves.Write(rootDirRaw)
	dentOffs := masterRawLen + uint32(leaves.Len())
	leaves.Write(dentRaw)
	fileInodeOffs := masterRawLen + uint32(leaves.Len())
	leaves.Write(fileInodeRaw)
	dataOffs := masterRawLen + uint32(leaves.Len())
	leaves.Write(dataRaw)

	idxBody := new(bytes.Buffer)
	binary.Write(idxBody, binary.LittleEndian, uint16(4))
	binary.Write(idxBody, binary.LittleEndian, uint16(0))
	idxBody.Write(buildBranch(1, rootDirOffs, uint32(len(rootDirRaw)), zeroKey()))
	idxBody.Write(buildBranch(1, dentOffs, uint32(len(dentRaw)), zeroKey()))
	idxBody.Write(buildBranch(1, fileInodeOffs, uint32(len(fileInodeRaw)), zeroKey()))
	idxBody.Write(buildBranch(1, dataOffs, uint32(len(dataRaw)), zeroKey()))
	idxRaw := buildNode(ubifs.NodeIdx, 14, idxBody.Bytes())
	idxOffs := masterRawLen + uint32(leaves.Len())
	leaves.Write(idxRaw)

	masterBody := new(bytes.Buffer)
	binary.Write(masterBody, binary.LittleEndian, uint64(2)) // highest_inum
	binary.Write(masterBody, binary.LittleEndian, uint64(1)) // cmt_no
	binary.Write(masterBody, binary.LittleEndian, uint32(1)) // root_lnum
	binary.Write(masterBody, binary.LittleEndian, idxOffs)
	binary.Write(masterBody, binary.LittleEndian, uint32(len(idxRaw)))
	binary.Write(masterBody, binary.LittleEndian, uint32(0)) // log_lnum
	binary.Write(masterBody, binary.LittleEndian, uint64(0))
	binary.Write(masterBody, binary.LittleEndian, uint64(0))
	binary.Write(masterBody, binary.LittleEndian, uint64(0))
	binary.Write(masterBody, binary.LittleEndian, uint64(0))
	binary.Write(masterBody, binary.LittleEndian, uint64(0))
	masterRaw := buildNode(ubifs.NodeMst, 1, masterBody.Bytes())

	image := make([]byte, lebSize*2)
	// LEB 0: superblock placeholder, just needs the node magic for
	// format autodetection.
	binary.LittleEndian.PutUint32(image[0:4], ubifs.NodeMagic)
	// LEB 1: master node at offset 0, leaves/index following.
	copy(image[lebSize:], masterRaw)
	copy(image[lebSize+len(masterRaw):], leaves.Bytes())

	src := bytes.NewReader(image)

	opts := Options{LEBSize: lebSize}
	col := &Collector{}

	if err := Decode(src, opts, col); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var sawDir, sawFile bool
	for _, e := range col.Events {
		switch e.Kind {
		case KindDir:
			if e.Path == "/" {
				sawDir = true
			}
		case KindFile:
			if e.Path == "/hello.txt" {
				sawFile = true
				if string(e.Body) != string(fileData) {
					t.Errorf("expected body %q, got %q", fileData, e.Body)
				}
			}
		case KindWarning:
			t.Errorf("unexpected warning: %+v", e)
		}
	}

	if !sawDir {
		t.Error("expected root Dir event")
	}
	if !sawFile {
		t.Error("expected hello.txt File event")
	}
}
