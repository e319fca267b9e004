package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/mrshanahan/notes-sync/internal/utils"
	"github.com/mrshanahan/notes-sync/pkg/notes"
)

const previewLength = 200

// NoteRequest is the body of a create. The protected fields shadow the ones a
// client might echo back from a read so they are never applied.
type NoteRequest struct {
	notes.NoteInput

	ProtectedID        string    `json:"id"`
	ProtectedUserID    string    `json:"user_id"`
	ProtectedCreatedAt time.Time `json:"created_at"`
	ProtectedUpdatedAt time.Time `json:"updated_at"`
}

// NoteUpdateRequest is the body of a partial update.
type NoteUpdateRequest struct {
	notes.NoteUpdate

	ProtectedID        string    `json:"id"`
	ProtectedUserID    string    `json:"user_id"`
	ProtectedCreatedAt time.Time `json:"created_at"`
	ProtectedUpdatedAt time.Time `json:"updated_at"`
}

func (s *Server) ListNotes(c *fiber.Ctx) error {
	identity := getIdentity(c)
	list, err := s.store.ListNotes(c.UserContext(), identity.Principal.ID)
	if err != nil {
		return respondError(c, err, "failed to execute query to retrieve notes",
			"principalID", identity.Principal.ID)
	}

	includePreview := strings.ToLower(c.Query("includePreview", "false"))
	if includePreview == "true" {
		for _, n := range list {
			n.Content = utils.Preview(n.Content, previewLength)
		}
	}
	return c.JSON(list)
}

func (s *Server) CreateNote(c *fiber.Ctx) error {
	identity := getIdentity(c)

	data := &NoteRequest{}
	if err := json.Unmarshal(c.Body(), data); err != nil {
		c.Status(fiber.StatusBadRequest)
		return c.SendString("invalid request body")
	}
	if err := data.NoteInput.Validate(); err != nil {
		return respondError(c, err, "invalid note")
	}

	note, err := s.store.CreateNote(c.UserContext(), identity.Principal.ID, data.NoteInput)
	if err != nil {
		return respondError(c, err, "failed to create note",
			"title", data.Title)
	}
	slog.Debug("created note", "noteID", note.ID, "principalID", identity.Principal.ID)
	c.Status(fiber.StatusCreated)
	return c.JSON(note)
}

func (s *Server) GetNote(c *fiber.Ctx) error {
	return c.JSON(getNoteFromContext(c))
}

func (s *Server) UpdateNote(c *fiber.Ctx) error {
	identity := getIdentity(c)
	existingNote := getNoteFromContext(c)

	data := &NoteUpdateRequest{}
	if err := json.Unmarshal(c.Body(), data); err != nil {
		c.Status(fiber.StatusBadRequest)
		return c.SendString("invalid request body")
	}
	if err := data.NoteUpdate.Validate(); err != nil {
		return respondError(c, err, "invalid note update")
	}
	if data.NoteUpdate.IsEmpty() {
		return c.JSON(existingNote)
	}

	updated, err := s.store.UpdateNote(c.UserContext(), identity.Principal.ID, existingNote.ID, data.NoteUpdate)
	if err != nil {
		return respondError(c, err, "failed to update note",
			"noteID", existingNote.ID)
	}
	return c.JSON(updated)
}

func (s *Server) DeleteNote(c *fiber.Ctx) error {
	identity := getIdentity(c)
	id := c.Params("noteID")
	deleted, err := s.store.DeleteNote(c.UserContext(), identity.Principal.ID, id)
	if err != nil {
		return respondError(c, err, "failed to remove note",
			"noteID", id)
	}
	if !deleted {
		slog.Debug("delete matched no note", "noteID", id, "principalID", identity.Principal.ID)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) GetNoteContent(c *fiber.Ctx) error {
	note := getNoteFromContext(c)

	switch format := strings.ToLower(c.Query("format", "text")); format {
	case "text", "raw":
		c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
		return c.SendString(note.Content)
	case "html":
		var buf bytes.Buffer
		if err := s.markdown.Convert([]byte(note.Content), &buf); err != nil {
			return respondError(c, err, "failed to render note content",
				"noteID", note.ID)
		}
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return c.Send(buf.Bytes())
	default:
		c.Status(fiber.StatusBadRequest)
		return c.SendString("unsupported format: " + format)
	}
}

func (s *Server) UpdateNoteContent(c *fiber.Ctx) error {
	identity := getIdentity(c)
	note := getNoteFromContext(c)

	content := c.FormValue("content")
	if content == "" {
		fileHeader, err := c.FormFile("content")
		if err != nil && errors.Is(err, http.ErrMissingFile) {
			c.Status(fiber.StatusBadRequest)
			return c.SendString("either form value or form file required for 'content' form field")
		} else if err != nil {
			c.Status(fiber.StatusBadRequest)
			return c.SendString("unexpected error when reading form file: " + err.Error())
		}
		file, err := fileHeader.Open()
		if err != nil {
			slog.Error("failed to open form file",
				"err", err)
			c.Status(fiber.StatusInternalServerError)
			return c.SendString("failed to read form file")
		}
		defer file.Close()
		contentBytes, err := io.ReadAll(file)
		if err != nil {
			slog.Error("failed to read request file body",
				"err", err)
			c.Status(fiber.StatusInternalServerError)
			return c.SendString("failed to read form file")
		}
		content = string(contentBytes)
	}

	update := notes.NoteUpdate{Content: &content}
	if _, err := s.store.UpdateNote(c.UserContext(), identity.Principal.ID, note.ID, update); err != nil {
		return respondError(c, err, "failed to save note contents",
			"noteID", note.ID)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
