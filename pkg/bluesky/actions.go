package bluesky

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	pkgerrors "github.com/leadcadencehq/leadcadence-backend/pkg/errors"
	"github.com/leadcadencehq/leadcadence-backend/pkg/logger"
)

const (
	collectionLike   = "app.bsky.feed.like"
	collectionFollow = "app.bsky.graph.follow"
	collectionPost   = "app.bsky.feed.post"

	maxReplyLength = 300
	maxDMLength    = 1000
)

// strongRef pins a record by URI and content hash.
type strongRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

type likeRecord struct {
	Type      string    `json:"$type"`
	Subject   strongRef `json:"subject"`
	CreatedAt string    `json:"createdAt"`
}

type followRecord struct {
	Type      string `json:"$type"`
	Subject   string `json:"subject"`
	CreatedAt string `json:"createdAt"`
}

type replyRefs struct {
	Root   strongRef `json:"root"`
	Parent strongRef `json:"parent"`
}

type postRecord struct {
	Type      string    `json:"$type"`
	Text      string    `json:"text"`
	Reply     replyRefs `json:"reply"`
	CreatedAt string    `json:"createdAt"`
}

type recordRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

// postView is the slice of app.bsky.feed.getPosts output the engine needs:
// the strong ref of the post and, when the post is itself a reply, the
// thread root to attach our reply to.
type postView struct {
	URI    string `json:"uri"`
	CID    string `json:"cid"`
	Record struct {
		Reply *replyRefs `json:"reply"`
	} `json:"record"`
}

// Like creates a like record for the given post URI.
func (c *Client) Like(ctx context.Context, postURI string) (bool, error) {
	postURI = strings.TrimSpace(postURI)
	if postURI == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "post uri is required")
	}

	post, err := c.getPost(ctx, postURI)
	if err != nil {
		return false, err
	}

	_, err = c.createRecord(ctx, collectionLike, likeRecord{
		Type:      collectionLike,
		Subject:   strongRef{URI: post.URI, CID: post.CID},
		CreatedAt: c.recordTimestamp(),
	})
	if err != nil {
		return false, mapAPIError(err, "create like")
	}
	return true, nil
}

// Follow creates a follow record for the given account DID.
func (c *Client) Follow(ctx context.Context, userDID string) (bool, error) {
	userDID = strings.TrimSpace(userDID)
	if userDID == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "user did is required")
	}

	_, err := c.createRecord(ctx, collectionFollow, followRecord{
		Type:      collectionFollow,
		Subject:   userDID,
		CreatedAt: c.recordTimestamp(),
	})
	if err != nil {
		return false, mapAPIError(err, "create follow")
	}
	return true, nil
}

// PostReply publishes text as a reply under the given post and returns the
// created record's URI. Replies to a mid-thread post keep the original root.
func (c *Client) PostReply(ctx context.Context, postURI, text string) (string, error) {
	postURI = strings.TrimSpace(postURI)
	if postURI == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "post uri is required")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "reply text is required")
	}
	if utf8.RuneCountInString(text) > maxReplyLength {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "reply text exceeds platform length limit")
	}

	post, err := c.getPost(ctx, postURI)
	if err != nil {
		return "", err
	}

	parent := strongRef{URI: post.URI, CID: post.CID}
	root := parent
	if post.Record.Reply != nil && post.Record.Reply.Root.URI != "" {
		root = post.Record.Reply.Root
	}

	created, err := c.createRecord(ctx, collectionPost, postRecord{
		Type:      collectionPost,
		Text:      text,
		Reply:     replyRefs{Root: root, Parent: parent},
		CreatedAt: c.recordTimestamp(),
	})
	if err != nil {
		return "", mapAPIError(err, "create reply")
	}
	return created.URI, nil
}

// SendDM opens (or reuses) the one-to-one convo with the account and sends
// text into it.
func (c *Client) SendDM(ctx context.Context, userDID, text string) (bool, error) {
	userDID = strings.TrimSpace(userDID)
	if userDID == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "user did is required")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "message text is required")
	}
	if utf8.RuneCountInString(text) > maxDMLength {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "message text exceeds platform length limit")
	}

	convoID, err := c.convoForMember(ctx, userDID)
	if err != nil {
		return false, err
	}

	body := map[string]any{
		"convoId": convoID,
		"message": map[string]string{"text": text},
	}
	if err := c.authedXRPC(ctx, xrpcRequest{
		method: http.MethodPost,
		nsid:   "chat.bsky.convo.sendMessage",
		body:   body,
		proxy:  chatProxy,
	}, nil); err != nil {
		return false, mapAPIError(err, "send message")
	}
	return true, nil
}

func (c *Client) getPost(ctx context.Context, postURI string) (*postView, error) {
	query := url.Values{}
	query.Set("uris", postURI)

	var resp struct {
		Posts []postView `json:"posts"`
	}
	if err := c.authedXRPC(ctx, xrpcRequest{
		method: http.MethodGet,
		nsid:   "app.bsky.feed.getPosts",
		query:  query,
	}, &resp); err != nil {
		return nil, mapAPIError(err, "fetch post")
	}
	if len(resp.Posts) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "post not found or deleted")
	}
	return &resp.Posts[0], nil
}

func (c *Client) createRecord(ctx context.Context, collection string, record any) (*recordRef, error) {
	sess, err := c.ensureSession(ctx)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"repo":       sess.did,
		"collection": collection,
		"record":     record,
	}

	var resp recordRef
	if err := c.authedXRPC(ctx, xrpcRequest{
		method: http.MethodPost,
		nsid:   "com.atproto.repo.createRecord",
		body:   body,
	}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) convoForMember(ctx context.Context, userDID string) (string, error) {
	query := url.Values{}
	query.Set("members", userDID)

	var resp struct {
		Convo struct {
			ID string `json:"id"`
		} `json:"convo"`
	}
	if err := c.authedXRPC(ctx, xrpcRequest{
		method: http.MethodGet,
		nsid:   "chat.bsky.convo.getConvoForMembers",
		query:  query,
		proxy:  chatProxy,
	}, &resp); err != nil {
		return "", mapAPIError(err, "resolve convo")
	}
	if resp.Convo.ID == "" {
		return "", pkgerrors.New(pkgerrors.CodeConnector, "convo id missing from response")
	}
	return resp.Convo.ID, nil
}

func (c *Client) recordTimestamp() string {
	return c.now().UTC().Format(time.RFC3339)
}

// DryRunConnector satisfies the engine connector surface without touching the
// platform. Every action logs and reports success.
type DryRunConnector struct {
	logg *logger.Logger
}

// NewDryRunConnector builds the no-network connector used when the dry-run
// feature flag is set.
func NewDryRunConnector(logg *logger.Logger) *DryRunConnector {
	return &DryRunConnector{logg: logg}
}

func (d *DryRunConnector) Like(ctx context.Context, postURI string) (bool, error) {
	d.log(ctx, "like", postURI)
	return true, nil
}

func (d *DryRunConnector) Follow(ctx context.Context, userDID string) (bool, error) {
	d.log(ctx, "follow", userDID)
	return true, nil
}

func (d *DryRunConnector) PostReply(ctx context.Context, postURI, _ string) (string, error) {
	d.log(ctx, "reply", postURI)
	return "dry-run:" + uuid.NewString(), nil
}

func (d *DryRunConnector) SendDM(ctx context.Context, userDID, _ string) (bool, error) {
	d.log(ctx, "dm", userDID)
	return true, nil
}

func (d *DryRunConnector) log(ctx context.Context, action, target string) {
	if d == nil || d.logg == nil {
		return
	}
	ctx = d.logg.WithFields(ctx, map[string]any{
		"action": action,
		"target": target,
	})
	d.logg.Info(ctx, "dry run action suppressed")
}
