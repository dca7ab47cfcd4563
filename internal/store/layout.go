package store

import (
	"path/filepath"
	"strconv"
)

// PageExt is the extension of page files.
const PageExt = ".ttl"

// Layout maps page numbers to file paths inside a folder.
//
// With FolderDepth <= 1 (or MaxNodeCountPerSubFolder == 0) pages sit directly
// in the folder as <page>.ttl. Otherwise FolderDepth-1 directory levels are
// inserted, derived from page-1: the top level is unbounded and every lower
// level cycles through MaxNodeCountPerSubFolder entries. The mapping depends
// on the page number alone, so any page is addressable without a directory
// scan.
type Layout struct {
	MaxNodeCountPerSubFolder int
	FolderDepth              int
}

// Path returns the page file path of page in folder, relative to the store root.
func (l Layout) Path(folder string, page int) string {
	name := strconv.Itoa(page) + PageExt
	if l.FolderDepth <= 1 || l.MaxNodeCountPerSubFolder <= 0 {
		return filepath.Join(folder, name)
	}

	levels := l.FolderDepth - 1
	parts := make([]string, 0, levels+2)
	parts = append(parts, folder)

	i := page - 1
	for k := 0; k < levels; k++ {
		bucket := i / pow(l.MaxNodeCountPerSubFolder, levels-k)
		if k > 0 {
			bucket %= l.MaxNodeCountPerSubFolder
		}
		parts = append(parts, strconv.Itoa(bucket))
	}
	parts = append(parts, name)
	return filepath.Join(parts...)
}

func pow(base, exp int) int {
	n := 1
	for range exp {
		n *= base
	}
	return n
}
