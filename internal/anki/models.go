package anki

import (
	"sort"

	"github.com/lingodeck/hub/internal/models"
)

// NoteField is one field of an Anki note. Order preserves the note type's
// field ordering, which is the fallback when field names are unfamiliar.
type NoteField struct {
	Value string `json:"value"`
	Order int    `json:"order"`
}

// NoteInfo is one note as returned by the notesInfo action.
type NoteInfo struct {
	NoteID    int64                `json:"noteId"`
	ModelName string               `json:"modelName"`
	Tags      []string             `json:"tags"`
	Fields    map[string]NoteField `json:"fields"`
}

// FrontBack extracts the front and back text of the note. Standard "Front"
// and "Back" field names win; otherwise the first two fields by order are
// used, which matches Anki's own card template defaults.
func (n *NoteInfo) FrontBack() (front, back string) {
	if f, ok := n.Fields["Front"]; ok {
		front = f.Value
	}
	if b, ok := n.Fields["Back"]; ok {
		back = b.Value
	}

	if front != "" || back != "" {
		return front, back
	}

	ordered := make([]NoteField, 0, len(n.Fields))
	for _, field := range n.Fields {
		ordered = append(ordered, field)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	if len(ordered) > 0 {
		front = ordered[0].Value
	}
	if len(ordered) > 1 {
		back = ordered[1].Value
	}
	return front, back
}

// ToUpsertRequest converts the note into an upsert request for the card store.
func (n *NoteInfo) ToUpsertRequest(deckName string) *models.UpsertCardRequest {
	front, back := n.FrontBack()

	noteID := n.NoteID
	req := &models.UpsertCardRequest{
		AnkiNoteID: &noteID,
		DeckName:   deckName,
		FrontText:  front,
		BackText:   back,
		Tags:       n.Tags,
	}

	if n.ModelName != "" {
		modelName := n.ModelName
		req.ModelName = &modelName
	}

	return req
}
