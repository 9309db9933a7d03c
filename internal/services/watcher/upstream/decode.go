package upstream

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	statusOK          = "ok"
	statusError       = "error"
	threadNotFoundMsg = "Thread not found"
)

// LatestItem is one row of a "latest items" listing page.
type LatestItem struct {
	ThreadID string
	Version  string
	// Date is the upstream relative age, e.g. "5 mins" or "Yesterday".
	Date string
}

// DecodeLatest validates a latest-listing response and returns its rows in
// listing order.
func DecodeLatest(body []byte) ([]LatestItem, error) {
	envelope, err := decodeEnvelope("latest updates", body)
	if err != nil {
		return nil, err
	}
	data := envelope.Get("msg.data")
	if !data.IsArray() {
		return nil, fmt.Errorf("latest updates: msg.data is not a list: %w", ErrMalformedResponse)
	}

	items := make([]LatestItem, 0, len(data.Array()))
	var decodeErr error
	data.ForEach(func(_, row gjson.Result) bool {
		threadID := strings.TrimSpace(row.Get("thread_id").String())
		if threadID == "" {
			decodeErr = fmt.Errorf("latest updates: row without thread_id: %w", ErrMalformedResponse)
			return false
		}
		items = append(items, LatestItem{
			ThreadID: threadID,
			Version:  row.Get("version").String(),
			Date:     row.Get("date").String(),
		})
		return true
	})
	if decodeErr != nil {
		return nil, decodeErr
	}
	return items, nil
}

// DecodeVersions validates a bulk version-check response and returns the
// version reported per thread id. A whole-batch "Thread not found" answer
// returns ErrThreadNotFound.
func DecodeVersions(body []byte) (map[string]string, error) {
	if flagged := CheckError(body); flagged != nil {
		return nil, flagged
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("versions: invalid JSON %q: %w", truncate(body), ErrMalformedResponse)
	}
	envelope := gjson.ParseBytes(body)
	status := envelope.Get("status").String()
	msg := envelope.Get("msg")
	if status == statusError && msg.String() == threadNotFoundMsg {
		return nil, ErrThreadNotFound
	}
	if status != statusOK {
		return nil, &StatusError{Endpoint: "versions", Status: status, Msg: msg.Raw}
	}
	if !msg.IsObject() {
		return nil, fmt.Errorf("versions: msg is not an object: %w", ErrMalformedResponse)
	}

	versions := make(map[string]string)
	msg.ForEach(func(id, version gjson.Result) bool {
		versions[id.String()] = version.String()
		return true
	})
	return versions, nil
}

func decodeEnvelope(endpoint string, body []byte) (gjson.Result, error) {
	if flagged := CheckError(body); flagged != nil {
		return gjson.Result{}, flagged
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("%s: invalid JSON %q: %w", endpoint, truncate(body), ErrMalformedResponse)
	}
	envelope := gjson.ParseBytes(body)
	if status := envelope.Get("status").String(); status != statusOK {
		return gjson.Result{}, &StatusError{Endpoint: endpoint, Status: status, Msg: envelope.Get("msg").Raw}
	}
	return envelope, nil
}

func truncate(body []byte) string {
	const limit = 256
	if len(body) <= limit {
		return string(body)
	}
	return string(body[:limit]) + "..."
}
