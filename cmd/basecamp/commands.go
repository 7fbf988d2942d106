package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/basecamp/internal/adventures"
	"github.com/MarcoPoloResearchLab/basecamp/internal/drafts"
	"github.com/MarcoPoloResearchLab/basecamp/internal/images"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultCardWidth = 72

func newFeedCommand() *cobra.Command {
	var (
		watch    time.Duration
		comments bool
		width    int
	)
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Render the collection as a feed of cards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(width)
			if err != nil {
				return err
			}
			defer s.close()

			ctx := cmd.Context()
			if err := s.store.FetchAll(ctx); err != nil {
				s.logger.Warn("initial fetch failed", zap.Error(err))
			}
			if comments {
				s.feed.ExpandAll()
			}
			if watch <= 0 {
				fmt.Fprintln(cmd.OutOrStdout(), s.feed.Render(ctx))
				return nil
			}
			return watchFeed(ctx, cmd, s, watch, comments)
		},
	}
	cmd.Flags().DurationVar(&watch, "watch", 0, "Re-render on every change, refetching on server change events and on this interval")
	cmd.Flags().BoolVar(&comments, "comments", false, "Disclose every comment panel")
	cmd.Flags().IntVar(&width, "width", defaultCardWidth, "Card width in columns (0 for unbounded)")
	return cmd
}

func watchFeed(ctx context.Context, cmd *cobra.Command, s *session, interval time.Duration, comments bool) error {
	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	states, cancel := s.store.Subscribe(signalCtx)
	defer cancel()

	changes, err := s.client.Watch(signalCtx)
	if err != nil {
		s.logger.Debug("change stream unavailable, polling only", zap.Error(err))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-signalCtx.Done():
			return nil
		case <-ticker.C:
			if err := s.store.FetchAll(signalCtx); err != nil {
				s.logger.Debug("refetch failed", zap.Error(err))
			}
		case event, ok := <-changes:
			if !ok {
				s.logger.Debug("change stream closed, polling only")
				changes = nil
				continue
			}
			s.logger.Debug("change announced", zap.String("event", event.Type), zap.Strings("entities", event.EntityIDs))
			if err := s.store.FetchAll(signalCtx); err != nil {
				s.logger.Debug("refetch failed", zap.Error(err))
			}
		case _, ok := <-states:
			if !ok {
				return nil
			}
			if comments {
				s.feed.ExpandAll()
			}
			fmt.Fprintln(cmd.OutOrStdout(), s.feed.Render(signalCtx))
			fmt.Fprintln(cmd.OutOrStdout())
		}
	}
}

func newAddCommand() *cobra.Command {
	var (
		kind        string
		assignments []string
		imagePath   string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an entity from --set path=value assignments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(defaultCardWidth)
			if err != nil {
				return err
			}
			defer s.close()

			parsedKind, err := adventures.ParseKind(kind)
			if err != nil {
				return err
			}
			if !s.config.Collection.Supports(parsedKind) {
				return fmt.Errorf("%s cannot hold %s entries", s.config.Collection, parsedKind)
			}
			draft, err := drafts.New(parsedKind)
			if err != nil {
				return err
			}
			draft.UserID = s.config.UserID
			if err := applyAssignments(draft, assignments); err != nil {
				return err
			}

			selector := images.NewSelector(images.SelectorConfig{Logger: s.logger})
			defer selector.Close()
			if err := selectImage(selector, imagePath); err != nil {
				return err
			}
			submission, err := draft.Submit(selector.File())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			created, err := s.store.Create(ctx, submission.Adventure, submission.Image)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s.feed.RenderCard(ctx, created))
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(adventures.KindFishing), "Entity kind (fishing, hunting or climbing)")
	cmd.Flags().StringArrayVar(&assignments, "set", nil, "Field assignment path=value, e.g. details.species=Bass (repeatable)")
	cmd.Flags().StringVar(&imagePath, "image", "", "Path to a JPEG, PNG or GIF image to attach")
	return cmd
}

func newEditCommand() *cobra.Command {
	var (
		kind        string
		assignments []string
		imagePath   string
	)
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Update an entity with --set path=value assignments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(defaultCardWidth)
			if err != nil {
				return err
			}
			defer s.close()

			ctx := cmd.Context()
			if err := s.store.FetchAll(ctx); err != nil {
				return err
			}
			draft, err := s.feed.Edit(args[0])
			if err != nil {
				return err
			}
			if kind != "" {
				parsedKind, err := adventures.ParseKind(kind)
				if err != nil {
					return err
				}
				if err := draft.SetKind(parsedKind); err != nil {
					return err
				}
			}
			if err := applyAssignments(draft, assignments); err != nil {
				return err
			}
			if err := draft.Validate(); err != nil {
				return err
			}

			selector := images.NewSelector(images.SelectorConfig{InitialURL: draft.ImageURL, Logger: s.logger})
			defer selector.Close()
			if err := selectImage(selector, imagePath); err != nil {
				return err
			}
			patch, err := draft.Patch()
			if err != nil {
				return err
			}
			updated, err := s.store.Update(ctx, args[0], patch, selector.File())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s.feed.RenderCard(ctx, updated))
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Switch the entity kind; details reset to the new kind's defaults")
	cmd.Flags().StringArrayVar(&assignments, "set", nil, "Field assignment path=value (repeatable)")
	cmd.Flags().StringVar(&imagePath, "image", "", "Path to a replacement image")
	return cmd
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(defaultCardWidth)
			if err != nil {
				return err
			}
			defer s.close()
			if err := s.feed.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func newLikeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "like <id>...",
		Short: "Toggle the session user's like on one or more entities",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(defaultCardWidth)
			if err != nil {
				return err
			}
			defer s.close()

			ctx := cmd.Context()
			if err := s.store.FetchAll(ctx); err != nil {
				return err
			}
			group, groupCtx := errgroup.WithContext(ctx)
			for _, id := range args {
				id := id
				group.Go(func() error {
					return s.feed.Like(groupCtx, id)
				})
			}
			if err := group.Wait(); err != nil {
				return err
			}
			for _, id := range args {
				if entity, ok := s.store.Entity(id); ok {
					fmt.Fprintln(cmd.OutOrStdout(), s.feed.RenderCard(ctx, entity))
				}
			}
			return nil
		},
	}
}

func newCommentCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "comment <id> <text>",
		Short: "Comment on an entity as the session user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(defaultCardWidth)
			if err != nil {
				return err
			}
			defer s.close()

			ctx := cmd.Context()
			if err := s.store.FetchAll(ctx); err != nil {
				return err
			}
			if err := s.feed.Comment(ctx, args[0], args[1]); err != nil {
				return err
			}
			s.feed.ToggleComments(args[0])
			if entity, ok := s.store.Entity(args[0]); ok {
				fmt.Fprintln(cmd.OutOrStdout(), s.feed.RenderCard(ctx, entity))
			}
			return nil
		},
	}
}

func newShareCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "share <id>",
		Short: "Print a share link for an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(defaultCardWidth)
			if err != nil {
				return err
			}
			defer s.close()

			if err := s.store.FetchAll(cmd.Context()); err != nil {
				return err
			}
			link, err := s.feed.Share(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), link)
			return nil
		},
	}
}

func newUploadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <path>",
		Short: "Upload an image and print its URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(defaultCardWidth)
			if err != nil {
				return err
			}
			defer s.close()

			handle, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer handle.Close()
			file, err := images.Read(filepath.Base(args[0]), handle)
			if err != nil {
				return err
			}
			imageURL, err := s.store.UploadImage(cmd.Context(), file)
			if err != nil {
				return err
			}
			s.logger.Info("image uploaded",
				zap.String("name", file.Name),
				zap.String("size", humanize.Bytes(uint64(file.Size()))),
			)
			fmt.Fprintln(cmd.OutOrStdout(), imageURL)
			return nil
		},
	}
}
