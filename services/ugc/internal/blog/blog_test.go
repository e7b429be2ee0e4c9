package blog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/blog-ugc/internal/platform/events"
	"github.com/example/blog-ugc/services/ugc/internal/content"
	"github.com/example/blog-ugc/services/ugc/internal/keylock"
	"github.com/example/blog-ugc/services/ugc/internal/resolver"
	"github.com/example/blog-ugc/services/ugc/internal/settings"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type published struct {
	subject string
	postID  string
	props   map[string]any
}

type recordingEvents struct {
	mu     sync.Mutex
	events []published
}

func (r *recordingEvents) Publish(subject, _ string, postID string, props map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{subject: subject, postID: postID, props: props})
}

func (r *recordingEvents) subjects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.subject
	}
	return out
}

type fixture struct {
	store    *content.MemoryStore
	clock    *clock
	events   *recordingEvents
	cfg      *settings.Static
	deps     Deps
	postID   string
	comments *CommentService
	likes    *LikeService
	ratings  *RatingService
}

func newFixture(t *testing.T, requireModeration bool) *fixture {
	t.Helper()
	store := content.NewMemoryStore()
	postID, err := content.SeedPost(context.Background(), store, "demo", "hello", "Hello")
	require.NoError(t, err)

	f := &fixture{
		store:  store,
		clock:  &clock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
		events: &recordingEvents{},
		cfg: &settings.Static{
			ServerSecret:       "s",
			ClientIDCookieName: "cid",
			EnableIPHash:       true,
			RequireModeration:  requireModeration,
		},
		postID: postID,
	}
	f.deps = Deps{
		Store:    store,
		Settings: f.cfg,
		Locker:   keylock.NewLocal(),
		Events:   f.events,
		Now:      f.clock.Now,
	}
	f.comments = NewCommentService(f.deps)
	f.likes = NewLikeService(f.deps)
	f.ratings = NewRatingService(f.deps)
	return f
}

func (f *fixture) comment(body, client, ip string) CommentRequest {
	return CommentRequest{
		Submission: Submission{PostID: f.postID, ClientHash: client, IPHash: ip, UserAgent: "test-agent"},
		Body:       body,
		Author:     "Ada",
	}
}

func TestCommentSubmit_ModerationGating(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	res, err := f.comments.Submit(ctx, f.comment("first!", "c1", "ip1"))
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, CodeAwaitingModeration, res.Code)
	require.NotEmpty(t, res.CommentID)

	views, err := f.comments.Comments(ctx, f.postID)
	require.NoError(t, err)
	require.Empty(t, views, "pending comments are not public")

	pending, err := f.comments.Moderation(ctx, f.postID, StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, res.CommentID, pending[0].ID)

	ok, err := f.comments.UpdateStatus(ctx, res.CommentID, StatusApproved)
	require.NoError(t, err)
	require.True(t, ok)

	views, err = f.comments.Comments(ctx, f.postID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.Equal(t, "Ada", views[0].AuthorName)
	require.Equal(t, "first!", views[0].Body)
	require.Equal(t, StatusApproved, views[0].Status)
	require.True(t, f.clock.Now().Equal(views[0].Created))

	require.Equal(t, []string{events.SubjectCommentSubmitted, events.SubjectCommentModerated}, f.events.subjects())
}

func TestCommentSubmit_NoModeration(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	req := f.comment("hello", "", "")
	req.Author = "  "
	res, err := f.comments.Submit(ctx, req)
	require.NoError(t, err)
	require.Equal(t, CommentResult{Success: true, Code: CodeOK, CommentID: res.CommentID}, res)

	views, err := f.comments.Comments(ctx, f.postID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.Equal(t, DefaultAuthor, views[0].AuthorName)
}

func TestCommentSubmit_ModerationFlagReadPerCall(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	res, err := f.comments.Submit(ctx, f.comment("one", "c1", ""))
	require.NoError(t, err)
	require.Equal(t, CodeAwaitingModeration, res.Code)

	f.cfg.RequireModeration = false
	res, err = f.comments.Submit(ctx, f.comment("two", "c1", ""))
	require.NoError(t, err)
	require.Equal(t, CodeOK, res.Code)
}

func TestCommentSubmit_DuplicateByClient(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	_, err := f.comments.Submit(ctx, f.comment("same", "c1", "ip1"))
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	res, err := f.comments.Submit(ctx, f.comment("same", "c1", "ip2"))
	require.NoError(t, err)
	require.Equal(t, CommentResult{Success: false, Code: CodeDuplicateComment}, res)

	res, err = f.comments.Submit(ctx, f.comment("different", "c1", "ip1"))
	require.NoError(t, err)
	require.True(t, res.Success)

	require.Len(t, f.events.subjects(), 2, "rejections do not publish")
}

func TestCommentSubmit_DuplicateByIPWithinWindow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	_, err := f.comments.Submit(ctx, f.comment("spam", "c1", "ip1"))
	require.NoError(t, err)

	f.clock.Advance(30 * time.Second)
	res, err := f.comments.Submit(ctx, f.comment("spam", "c2", "ip1"))
	require.NoError(t, err)
	require.Equal(t, CodeDuplicateComment, res.Code)

	f.clock.Advance(2 * time.Minute)
	res, err = f.comments.Submit(ctx, f.comment("spam", "c3", "ip1"))
	require.NoError(t, err)
	require.True(t, res.Success, "same network is allowed again after the window")
}

func TestCommentSubmit_BlankHashesNeverMatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	for i := 0; i < 2; i++ {
		res, err := f.comments.Submit(ctx, f.comment("anon", "", ""))
		require.NoError(t, err)
		require.True(t, res.Success)
	}
}

func TestComments_LegacyApprovedFlag(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	ts := f.clock.Now().Add(-time.Hour)

	require.NoError(t, f.store.Do(ctx, func(s content.Session) error {
		folder, err := resolver.EnsureFolder(ctx, s, resolver.BasePath("demo", f.postID, resolver.KindComments), resolver.KindComments.LeafType())
		require.NoError(t, err)
		for name, approved := range map[string]any{"c-legacy-yes": true, "c-legacy-no": false, "c-legacy-unset": nil} {
			n, err := s.CreateChild(ctx, folder, name, resolver.KindComments.RecordType())
			require.NoError(t, err)
			require.NoError(t, s.SetProperty(ctx, n, propBody, name))
			require.NoError(t, s.SetProperty(ctx, n, propTimestamp, ts))
			if approved != nil {
				require.NoError(t, s.SetProperty(ctx, n, propApproved, approved))
			}
		}
		return s.Save(ctx)
	}))

	views, err := f.comments.Comments(ctx, f.postID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.Equal(t, "c-legacy-yes", views[0].Body)
	require.Equal(t, DefaultAuthor, views[0].AuthorName)

	all, err := f.comments.Moderation(ctx, f.postID, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestComments_SortedByTimestamp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	base := f.clock.Now()

	for i, off := range []time.Duration{time.Minute, -time.Hour, 0} {
		req := f.comment(string(rune('a'+i)), "", "")
		req.Timestamp = base.Add(off)
		_, err := f.comments.Submit(ctx, req)
		require.NoError(t, err)
	}

	views, err := f.comments.Comments(ctx, f.postID)
	require.NoError(t, err)
	require.Len(t, views, 3)
	require.Equal(t, []string{"b", "c", "a"}, []string{views[0].Body, views[1].Body, views[2].Body})
}

func TestComments_NoFolder(t *testing.T) {
	f := newFixture(t, false)
	views, err := f.comments.Comments(context.Background(), f.postID)
	require.NoError(t, err)
	require.NotNil(t, views)
	require.Empty(t, views)
}

func TestUpdateStatusAndDelete_UnknownID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	ok, err := f.comments.UpdateStatus(ctx, "does-not-exist", StatusApproved)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = f.comments.Delete(ctx, "does-not-exist")
	require.NoError(t, err)
	require.False(t, ok)

	// A post is not a comment.
	ok, err = f.comments.Delete(ctx, f.postID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestUpdateStatus_RejectAndReopen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	res, err := f.comments.Submit(ctx, f.comment("hi", "c1", ""))
	require.NoError(t, err)

	for _, status := range []string{StatusRejected, StatusPending, StatusApproved} {
		ok, err := f.comments.UpdateStatus(ctx, res.CommentID, status)
		require.NoError(t, err)
		require.True(t, ok)

		all, err := f.comments.Moderation(ctx, f.postID, status)
		require.NoError(t, err)
		require.Len(t, all, 1)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	res, err := f.comments.Submit(ctx, f.comment("bye", "c1", ""))
	require.NoError(t, err)

	ok, err := f.comments.Delete(ctx, res.CommentID)
	require.NoError(t, err)
	require.True(t, ok)

	views, err := f.comments.Comments(ctx, f.postID)
	require.NoError(t, err)
	require.Empty(t, views)

	ok, err = f.comments.Delete(ctx, res.CommentID)
	require.NoError(t, err)
	require.False(t, ok)
	require.Contains(t, f.events.subjects(), events.SubjectCommentDeleted)
}

func TestQueue_AcrossPostsWithCounts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	second, err := content.SeedPost(ctx, f.store, "demo", "second", "Second")
	require.NoError(t, err)
	base := f.clock.Now()

	submit := func(postID, body string, off time.Duration) string {
		req := f.comment(body, "client-"+body, "")
		req.PostID = postID
		req.Timestamp = base.Add(off)
		res, err := f.comments.Submit(ctx, req)
		require.NoError(t, err)
		require.True(t, res.Success)
		return res.CommentID
	}
	submit(f.postID, "first-a", -3*time.Minute)
	submit(second, "second-a", -2*time.Minute)
	approved := submit(f.postID, "first-b", -time.Minute)
	rejected := submit(second, "second-b", 0)

	ok, err := f.comments.UpdateStatus(ctx, approved, StatusApproved)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = f.comments.UpdateStatus(ctx, rejected, StatusRejected)
	require.NoError(t, err)
	require.True(t, ok)

	q, err := f.comments.Queue(ctx, StatusPending)
	require.NoError(t, err)
	require.Equal(t, StatusCounts{Pending: 2, Approved: 1, Rejected: 1}, q.Counts)
	require.Equal(t, 2, q.Total)
	require.Len(t, q.Posts, 2)
	require.Equal(t, f.postID, q.Posts[0].PostID)
	require.Equal(t, "first-a", q.Posts[0].Comments[0].Body)
	require.Equal(t, second, q.Posts[1].PostID)
	require.Equal(t, "second-a", q.Posts[1].Comments[0].Body)

	all, err := f.comments.Queue(ctx, "")
	require.NoError(t, err)
	require.Equal(t, 4, all.Total)
	require.Len(t, all.Posts, 2)
	require.Len(t, all.Posts[0].Comments, 2)
	require.Equal(t, "first-b", all.Posts[0].Comments[1].Body)
	require.Equal(t, all.Counts, q.Counts)
}

func TestQueue_Empty(t *testing.T) {
	f := newFixture(t, true)
	q, err := f.comments.Queue(context.Background(), "")
	require.NoError(t, err)
	require.NotNil(t, q.Posts)
	require.Empty(t, q.Posts)
	require.Equal(t, StatusCounts{}, q.Counts)
}

func TestCommentSubmit_EmptyBody(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	for _, body := range []string{"", "   \n\t"} {
		_, err := f.comments.Submit(ctx, f.comment(body, "c1", "ip1"))
		require.ErrorIs(t, err, ErrEmptyComment)
	}
	views, err := f.comments.Moderation(ctx, f.postID, "")
	require.NoError(t, err)
	require.Empty(t, views)
}

func TestLikeSubmit_DedupByEitherHash(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	like := func(client, ip string) LikeRequest {
		return LikeRequest{Submission: Submission{PostID: f.postID, ClientHash: client, IPHash: ip}}
	}

	res, err := f.likes.Submit(ctx, like("c1", "ip1"))
	require.NoError(t, err)
	require.Equal(t, LikeResult{Success: true, Code: CodeOK}, res)

	res, err = f.likes.Submit(ctx, like("c1", "ip2"))
	require.NoError(t, err)
	require.Equal(t, LikeResult{Success: false, Code: CodeAlreadyLiked}, res)

	res, err = f.likes.Submit(ctx, like("c2", "ip1"))
	require.NoError(t, err)
	require.Equal(t, CodeAlreadyLiked, res.Code)

	res, err = f.likes.Submit(ctx, like("c2", "ip2"))
	require.NoError(t, err)
	require.True(t, res.Success)

	n, err := f.likes.Count(ctx, f.postID)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestLikeCount_NoFolder(t *testing.T) {
	f := newFixture(t, false)
	n, err := f.likes.Count(context.Background(), f.postID)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestRatingSubmit_Upsert(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	rate := func(client, ip string, v int64) RatingRequest {
		return RatingRequest{Submission: Submission{PostID: f.postID, ClientHash: client, IPHash: ip}, Value: v}
	}

	res, err := f.ratings.Submit(ctx, rate("c1", "ip1", 5))
	require.NoError(t, err)
	require.Equal(t, RatingResult{PostID: f.postID, RatingStats: RatingStats{AverageRating: 5, RatingCount: 1}}, res)

	res, err = f.ratings.Submit(ctx, rate("c1", "", 2))
	require.NoError(t, err)
	require.Equal(t, 1, res.RatingCount)
	require.InDelta(t, 2.0, res.AverageRating, 1e-9)

	res, err = f.ratings.Submit(ctx, rate("", "ip1", 3))
	require.NoError(t, err)
	require.Equal(t, 1, res.RatingCount, "matching IP updates the same rating")

	res, err = f.ratings.Submit(ctx, rate("c2", "ip2", 4))
	require.NoError(t, err)
	require.Equal(t, 2, res.RatingCount)
	require.InDelta(t, 3.5, res.AverageRating, 1e-9)

	stats, err := f.ratings.Stats(ctx, f.postID)
	require.NoError(t, err)
	require.Equal(t, res.RatingStats, stats)
}

func TestRatingSubmit_UpdateUsesServerTime(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	past := f.clock.Now().Add(-24 * time.Hour)

	req := RatingRequest{Submission: Submission{PostID: f.postID, ClientHash: "c1", Timestamp: past}, Value: 5}
	_, err := f.ratings.Submit(ctx, req)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	req.Timestamp = past.Add(-time.Hour)
	req.Value = 3
	_, err = f.ratings.Submit(ctx, req)
	require.NoError(t, err)

	require.NoError(t, f.store.Do(ctx, func(s content.Session) error {
		folder, err := resolver.Folder(ctx, s, f.postID, resolver.KindRatings)
		require.NoError(t, err)
		recs, err := records(ctx, s, folder, resolver.KindRatings)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		require.True(t, recs[0].hasTS)
		require.True(t, recs[0].ts.Equal(f.clock.Now()), "ts %v", recs[0].ts)
		return nil
	}))
}

func TestRatingStats_NoFolder(t *testing.T) {
	f := newFixture(t, false)
	stats, err := f.ratings.Stats(context.Background(), f.postID)
	require.NoError(t, err)
	require.Equal(t, RatingStats{}, stats)
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name   string
		values []int64
		want   RatingStats
	}{
		{"empty", nil, RatingStats{}},
		{"single", []int64{4}, RatingStats{AverageRating: 4, RatingCount: 1}},
		{"fractional", []int64{1, 2}, RatingStats{AverageRating: 1.5, RatingCount: 2}},
		{"unbounded", []int64{-3, 100, 5}, RatingStats{AverageRating: 34, RatingCount: 3}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Aggregate(tc.values))
		})
	}
}

func TestUnknownPost_ResolutionError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	sub := Submission{PostID: "missing", ClientHash: "c1"}

	_, err := f.comments.Submit(ctx, CommentRequest{Submission: sub, Body: "x"})
	var rerr *ResolutionError
	require.ErrorAs(t, err, &rerr)

	_, err = f.likes.Submit(ctx, LikeRequest{Submission: sub})
	require.ErrorAs(t, err, &rerr)

	_, err = f.ratings.Submit(ctx, RatingRequest{Submission: sub, Value: 3})
	require.ErrorAs(t, err, &rerr)

	_, err = f.comments.Comments(ctx, "missing")
	require.ErrorAs(t, err, &rerr)

	_, err = f.likes.Count(ctx, "missing")
	require.ErrorAs(t, err, &rerr)

	_, err = f.ratings.Stats(ctx, "missing")
	require.ErrorAs(t, err, &rerr)
	require.ErrorIs(t, err, content.ErrNotFound)
}

type failingStore struct{ err error }

func (s failingStore) Do(context.Context, func(content.Session) error) error { return s.err }
func (s failingStore) Ping(context.Context) error                             { return s.err }

func TestStoreFailure_ServiceError(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk on fire")
	svc := NewLikeService(Deps{Store: failingStore{err: boom}})

	_, err := svc.Submit(ctx, LikeRequest{Submission: Submission{PostID: "p1"}})
	var serr *ServiceError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, "submit_like", serr.Op)
	require.Equal(t, "p1", serr.PostID)
	require.ErrorIs(t, err, boom)

	_, err = NewCommentService(Deps{Store: failingStore{err: boom}}).UpdateStatus(ctx, "x", StatusApproved)
	require.ErrorAs(t, err, &serr)
}

func TestCommentSubmit_ConcurrentDuplicatesSerialized(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	const n = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.comments.Submit(ctx, f.comment("race", "c1", "ip1"))
			if err != nil {
				t.Errorf("submit: %v", err)
				return
			}
			if res.Success {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, successes)

	all, err := f.comments.Moderation(ctx, f.postID, "")
	require.NoError(t, err)
	require.Len(t, all, 1)
}
