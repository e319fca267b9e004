package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrshanahan/notes-sync/pkg/notes"
)

const timeFormat = "2006-01-02 15:04"

func newListCmd(state *cli) *cobra.Command {
	var (
		listJSON  bool
		filterTag string
	)
	cmd := &cobra.Command{
		Use:         "list",
		Short:       "List your notes, newest first",
		Args:        cobra.NoArgs,
		Annotations: sessionAnnotation(),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := state.client.ListNotes(cmd.Context())
			if err != nil {
				return fail("failed to load notes", err)
			}

			filtered := []*notes.Note{}
			for _, note := range list {
				if filterTag != "" && !slices.Contains(note.Tags, filterTag) {
					continue
				}
				filtered = append(filtered, note)
			}

			out := cmd.OutOrStdout()
			if listJSON {
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				if err := encoder.Encode(filtered); err != nil {
					return fail("failed to encode notes", err)
				}
				return nil
			}

			if len(filtered) == 0 {
				fmt.Fprintln(out, "No notes")
				return nil
			}
			for _, note := range filtered {
				fmt.Fprintf(out, "%s  %s  %s%s\n", note.ID, note.UpdatedAt.Local().Format(timeFormat), note.Title, formatTags(note.Tags))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	cmd.Flags().StringVar(&filterTag, "tag", "", "Only show notes with this tag")
	return cmd
}

func newShowCmd(state *cli) *cobra.Command {
	var html bool
	cmd := &cobra.Command{
		Use:         "show [id]",
		Short:       "Print a note",
		Args:        cobra.ExactArgs(1),
		Annotations: sessionAnnotation(),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if html {
				rendered, err := state.client.GetNoteContent(cmd.Context(), args[0], "html")
				if err != nil {
					return fail("failed to load note", err)
				}
				fmt.Fprint(out, rendered)
				return nil
			}

			note, err := state.client.GetNote(cmd.Context(), args[0])
			if err != nil {
				return fail("failed to load note", err)
			}
			printNote(out, note)
			return nil
		},
	}
	cmd.Flags().BoolVar(&html, "html", false, "Render the content from markdown to HTML")
	return cmd
}

func newNewCmd(state *cli) *cobra.Command {
	var (
		title   string
		content string
		tags    []string
	)
	cmd := &cobra.Command{
		Use:         "new",
		Short:       "Create a note",
		Args:        cobra.NoArgs,
		Annotations: sessionAnnotation(),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readContent(state.input, content)
			if err != nil {
				return fail("failed to read content", err)
			}
			note, err := state.client.CreateNote(cmd.Context(), notes.NoteInput{
				Title:   title,
				Content: body,
				Tags:    tags,
			})
			if err != nil {
				return fail("failed to create note", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created note %s\n", note.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Note title (required)")
	cmd.Flags().StringVar(&content, "content", "", "Note content; '-' reads from stdin")
	cmd.Flags().StringArrayVar(&tags, "tag", nil, "Tag to attach (repeatable)")
	return cmd
}

func newEditCmd(state *cli) *cobra.Command {
	var (
		title     string
		content   string
		tags      []string
		clearTags bool
	)
	cmd := &cobra.Command{
		Use:         "edit [id]",
		Short:       "Change a note's title, content or tags",
		Long:        `Only the flags given are changed; everything else is left as it is.`,
		Args:        cobra.ExactArgs(1),
		Annotations: sessionAnnotation(),
		RunE: func(cmd *cobra.Command, args []string) error {
			update := notes.NoteUpdate{}
			flags := cmd.Flags()
			if flags.Changed("title") {
				update.Title = &title
			}
			if flags.Changed("content") {
				body, err := readContent(state.input, content)
				if err != nil {
					return fail("failed to read content", err)
				}
				update.Content = &body
			}
			if flags.Changed("tag") {
				update.Tags = &tags
			} else if clearTags {
				update.Tags = notes.TagsPtr([]string{})
			}
			if update.IsEmpty() {
				return &cliError{msg: "nothing to change; pass --title, --content, --tag or --clear-tags"}
			}

			note, err := state.client.UpdateNote(cmd.Context(), args[0], update)
			if err != nil {
				return fail("failed to update note", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated note %s\n", note.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "New title")
	cmd.Flags().StringVar(&content, "content", "", "New content; '-' reads from stdin")
	cmd.Flags().StringArrayVar(&tags, "tag", nil, "Replace tags (repeatable)")
	cmd.Flags().BoolVar(&clearTags, "clear-tags", false, "Remove all tags")
	cmd.MarkFlagsMutuallyExclusive("tag", "clear-tags")
	return cmd
}

func newDeleteCmd(state *cli) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:         "delete [id]",
		Short:       "Delete a note permanently",
		Args:        cobra.ExactArgs(1),
		Annotations: sessionAnnotation(),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			out := cmd.OutOrStdout()
			if !yes {
				answer, err := state.prompt(out, fmt.Sprintf("Delete note %s? [y/N] ", id))
				if err != nil {
					return fail("failed to read confirmation", err)
				}
				if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
					fmt.Fprintln(out, "Aborted")
					return nil
				}
			}

			if err := state.client.DeleteNote(cmd.Context(), id); err != nil {
				return fail("failed to delete note", err)
			}
			fmt.Fprintf(out, "Deleted note %s\n", id)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func readContent(in io.Reader, value string) (string, error) {
	if value != "-" {
		return value, nil
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func printNote(out io.Writer, note *notes.Note) {
	fmt.Fprintf(out, "# %s%s\n", note.Title, formatTags(note.Tags))
	fmt.Fprintf(out, "id: %s\ncreated: %s\nupdated: %s\n\n",
		note.ID,
		note.CreatedAt.Local().Format(time.RFC3339),
		note.UpdatedAt.Local().Format(time.RFC3339))
	fmt.Fprintln(out, note.Content)
}

func formatTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return "  [" + strings.Join(tags, ", ") + "]"
}
