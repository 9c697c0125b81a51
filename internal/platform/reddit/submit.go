package reddit

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/park285/crowdchess/internal/platform"
)

// submitWait bounds how long the submission socket is watched for a result.
const submitWait = 60 * time.Second

type uploadLease struct {
	action string
	fields [][2]string
	key    string
}

// SubmitImagePost uploads png as a media asset, submits it as an image post
// and waits for the site to report the new post. It returns the post's
// fullname.
func (c *Client) SubmitImagePost(ctx context.Context, title string, png []byte) (string, error) {
	lease, err := c.leaseUpload(ctx)
	if err != nil {
		return "", err
	}
	imageURL, err := c.upload(ctx, lease, png)
	if err != nil {
		return "", err
	}

	body, err := c.call(ctx, fasthttp.MethodPost, "/api/submit", formArgs(
		"api_type", "json",
		"sr", c.subreddit,
		"kind", "image",
		"title", title,
		"url", imageURL,
		"resubmit", "true",
		"sendreplies", "true",
	), false)
	if err != nil {
		return "", err
	}
	res := gjson.ParseBytes(body)
	if errs := res.Get("json.errors"); errs.IsArray() && len(errs.Array()) > 0 {
		return "", fmt.Errorf("%w: %s", platform.ErrSubmission, errs.Raw)
	}
	wsURL := res.Get("json.data.websocket_url").String()
	if wsURL == "" {
		return "", fmt.Errorf("%w: no websocket_url in submit response", platform.ErrSubmission)
	}

	ref, err := awaitSubmission(ctx, wsURL)
	if err != nil {
		return "", err
	}
	c.logger.Info("reddit_post_submitted", zap.String("ref", ref), zap.String("title", title))
	return ref, nil
}

func (c *Client) leaseUpload(ctx context.Context) (uploadLease, error) {
	body, err := c.call(ctx, fasthttp.MethodPost, "/api/media/asset.json",
		formArgs("filepath", "board.png", "mimetype", "image/png"), true)
	if err != nil {
		return uploadLease{}, fmt.Errorf("lease upload: %w", err)
	}
	res := gjson.ParseBytes(body)
	lease := uploadLease{action: res.Get("args.action").String()}
	if strings.HasPrefix(lease.action, "//") {
		lease.action = "https:" + lease.action
	}
	res.Get("args.fields").ForEach(func(_, f gjson.Result) bool {
		name, value := f.Get("name").String(), f.Get("value").String()
		lease.fields = append(lease.fields, [2]string{name, value})
		if name == "key" {
			lease.key = value
		}
		return true
	})
	if lease.action == "" || lease.key == "" {
		return uploadLease{}, fmt.Errorf("%w: malformed upload lease", platform.ErrSubmission)
	}
	return lease, nil
}

func (c *Client) upload(ctx context.Context, lease uploadLease, png []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range lease.fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return "", err
		}
	}
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="board.png"`)
	hdr.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(png); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()
	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(lease.action)
	req.Header.SetContentType(mw.FormDataContentType())
	req.Header.SetUserAgent(c.creds.UserAgent)
	req.SetBody(buf.Bytes())

	if err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx)); err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	if status := resp.StatusCode(); status < 200 || status >= 300 {
		return "", fmt.Errorf("%w: upload status=%d", platform.ErrSubmission, status)
	}
	return lease.action + "/" + lease.key, nil
}

// awaitSubmission reads the submission socket until the site reports where
// the post ended up.
func awaitSubmission(ctx context.Context, wsURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, submitWait)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: dial submission socket: %v", platform.ErrSubmission, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return "", fmt.Errorf("%w: read submission socket: %v", platform.ErrSubmission, err)
		}
		msg := gjson.ParseBytes(data)
		switch msg.Get("type").String() {
		case "success":
			redirect := msg.Get("payload.redirect").String()
			id := postIDFromURL(redirect)
			if id == "" {
				return "", fmt.Errorf("%w: unexpected redirect %q", platform.ErrSubmission, redirect)
			}
			return "t3_" + id, nil
		case "failed":
			return "", fmt.Errorf("%w: %s", platform.ErrSubmission, msg.Get("payload").Raw)
		}
	}
}

// postIDFromURL extracts abc from .../comments/abc/slug/.
func postIDFromURL(u string) string {
	parts := strings.Split(u, "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] == "comments" {
			return parts[i+1]
		}
	}
	return ""
}

// Reply answers the post or comment named by parentRef.
func (c *Client) Reply(ctx context.Context, parentRef, text string) error {
	body, err := c.call(ctx, fasthttp.MethodPost, "/api/comment", formArgs(
		"api_type", "json",
		"thing_id", parentRef,
		"text", text,
	), false)
	if err != nil {
		return fmt.Errorf("reply to %s: %w", parentRef, err)
	}
	if errs := gjson.GetBytes(body, "json.errors"); errs.IsArray() && len(errs.Array()) > 0 {
		return fmt.Errorf("%w: reply to %s: %s", ErrAPI, parentRef, errs.Raw)
	}
	return nil
}
