// Package document models the single JSON document that holds every note
// plus its allocator metadata, and encodes/decodes it for storage.
//
// On disk the document is one JSON object. Note keys are decimal strings,
// and the reserved "_meta" key carries the id allocator state:
//
//	{
//	  "0": {"title": "...", "content": "..."},
//	  "_meta": {"id_count": 1, "old_ids": []}
//	}
package document

import (
	"encoding/json"
	"strconv"
)

// MetaKey is the reserved document key holding allocator metadata.
// It is never exposed to API callers.
const MetaKey = "_meta"

// Note is a single stored note.
type Note struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Meta is the allocator state persisted alongside the notes.
type Meta struct {
	IDCount int   `json:"id_count"`
	OldIDs  []int `json:"old_ids"`
}

// Document is the decoded form of the stored JSON object.
type Document struct {
	Notes map[int]Note
	Meta  Meta
	// HasMeta reports whether the stored bytes carried a "_meta" entry.
	// Setup uses it to decide whether metadata must be bootstrapped.
	HasMeta bool
}

// New returns an empty document.
func New() *Document {
	return &Document{Notes: map[int]Note{}}
}

// Decode parses stored bytes into a Document.
//
// Corruption never surfaces as an error: malformed JSON, a non-object top
// level, or an empty payload all decode to an empty document, so a damaged
// store degrades to "no notes" instead of failing every request. Entries
// whose key is not a non-negative decimal integer, or whose value does not
// parse, are dropped.
func Decode(data []byte) *Document {
	doc := New()
	if len(data) == 0 {
		return doc
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return doc
	}

	for key, value := range raw {
		if key == MetaKey {
			var meta Meta
			if err := json.Unmarshal(value, &meta); err != nil {
				continue
			}
			doc.Meta = meta
			doc.HasMeta = true
			continue
		}

		id, err := strconv.Atoi(key)
		if err != nil || id < 0 {
			continue
		}
		var note Note
		if err := json.Unmarshal(value, &note); err != nil {
			continue
		}
		doc.Notes[id] = note
	}
	return doc
}

// Encode serializes the document to JSON. Pretty output is indented for
// the local file; compact output goes to the remote object.
func (d *Document) Encode(pretty bool) ([]byte, error) {
	out := make(map[string]any, len(d.Notes)+1)
	for id, note := range d.Notes {
		out[strconv.Itoa(id)] = note
	}
	meta := d.Meta
	if meta.OldIDs == nil {
		meta.OldIDs = []int{}
	}
	out[MetaKey] = meta

	if pretty {
		return json.MarshalIndent(out, "", "  ")
	}
	return json.Marshal(out)
}

// Get returns the note with the given id.
func (d *Document) Get(id int) (Note, bool) {
	note, ok := d.Notes[id]
	return note, ok
}

// Put inserts or replaces the note with the given id.
func (d *Document) Put(id int, note Note) {
	d.Notes[id] = note
}

// Delete removes the note with the given id, reporting whether it existed.
func (d *Document) Delete(id int) bool {
	if _, ok := d.Notes[id]; !ok {
		return false
	}
	delete(d.Notes, id)
	return true
}

// Len returns the number of notes, metadata excluded.
func (d *Document) Len() int {
	return len(d.Notes)
}

// Public returns a string-keyed view of the notes with "_meta" hidden,
// ready for API responses.
func (d *Document) Public() map[string]Note {
	out := make(map[string]Note, len(d.Notes))
	for id, note := range d.Notes {
		out[strconv.Itoa(id)] = note
	}
	return out
}
