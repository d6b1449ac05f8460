package compilerstore

import (
	"sort"

	"github.com/buildbarn/bb-compiler-store/pkg/filesystem/path"

	mapset "github.com/deckarep/golang-set/v2"
)

// LocationIndex is a bidirectional mapping between ObjectIdentifiers
// and the Locations at which they are stored. The reverse direction
// (data file to identifiers) is used during recovery and validation,
// where all identifiers that claim to be stored in a single data file
// need to be considered at once.
//
// Every identifier has at most one location. As stored objects are
// immutable, there is no need to track more than one copy.
type LocationIndex struct {
	locations map[ObjectIdentifier]Location
	files     map[path.Component]mapset.Set[ObjectIdentifier]
}

// NewLocationIndex creates an empty LocationIndex.
func NewLocationIndex() *LocationIndex {
	return &LocationIndex{
		locations: map[ObjectIdentifier]Location{},
		files:     map[path.Component]mapset.Set[ObjectIdentifier]{},
	}
}

// Insert the location of an object. Insertion is ignored if the object
// is already known, in which case false is returned.
func (li *LocationIndex) Insert(id ObjectIdentifier, location Location) bool {
	if _, ok := li.locations[id]; ok {
		return false
	}
	li.locations[id] = location
	ids, ok := li.files[location.File]
	if !ok {
		ids = mapset.NewThreadUnsafeSet[ObjectIdentifier]()
		li.files[location.File] = ids
	}
	ids.Add(id)
	return true
}

// Lookup the location of an object.
func (li *LocationIndex) Lookup(id ObjectIdentifier) (Location, bool) {
	location, ok := li.locations[id]
	return location, ok
}

// Contains returns whether the location of an object is known.
func (li *LocationIndex) Contains(id ObjectIdentifier) bool {
	_, ok := li.locations[id]
	return ok
}

// Remove the location of an object.
func (li *LocationIndex) Remove(id ObjectIdentifier) {
	location, ok := li.locations[id]
	if !ok {
		return
	}
	delete(li.locations, id)
	if ids := li.files[location.File]; ids != nil {
		ids.Remove(id)
		if ids.Cardinality() == 0 {
			delete(li.files, location.File)
		}
	}
}

// RemoveFile removes the locations of all objects stored in a data
// file, returning the number of entries removed. This is used when a
// data file turns out to be unusable.
func (li *LocationIndex) RemoveFile(file path.Component) int {
	ids, ok := li.files[file]
	if !ok {
		return 0
	}
	delete(li.files, file)
	for id := range ids.Iter() {
		delete(li.locations, id)
	}
	return ids.Cardinality()
}

// RebuildFrom replaces all locations pointing into a data file with
// ones obtained by scanning it. Entries for identifiers that are
// already stored in another data file are left untouched.
func (li *LocationIndex) RebuildFrom(file path.Component, locations map[ObjectIdentifier]Location) {
	li.RemoveFile(file)
	for _, id := range sortedIdentifiers(locations) {
		li.Insert(id, locations[id])
	}
}

// Files returns the names of all data files that are referenced by
// the index, in sorted order.
func (li *LocationIndex) Files() []path.Component {
	files := make([]path.Component, 0, len(li.files))
	for file := range li.files {
		files = append(files, file)
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].String() < files[j].String()
	})
	return files
}

// IdentifiersIn returns the identifiers of all objects whose location
// is in a given data file, in sorted order.
func (li *LocationIndex) IdentifiersIn(file path.Component) []ObjectIdentifier {
	ids, ok := li.files[file]
	if !ok {
		return nil
	}
	l := ids.ToSlice()
	sort.Slice(l, func(i, j int) bool {
		return l[i].Compare(l[j]) < 0
	})
	return l
}

// Len returns the number of objects whose location is known.
func (li *LocationIndex) Len() int {
	return len(li.locations)
}

func sortedIdentifiers[V any](m map[ObjectIdentifier]V) []ObjectIdentifier {
	ids := make([]ObjectIdentifier, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].Compare(ids[j]) < 0
	})
	return ids
}
