package uploads

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// ObjectEvent is one object notification, independent of the store vendor
type ObjectEvent struct {
	// Source is "oss" or "s3"
	Source string
	Name   string
	Bucket string
	Key    string
	Size   int64
}

// Created reports whether the event announces a new object. Events without
// a name are treated as created.
func (e ObjectEvent) Created() bool {
	return e.Name == "" || strings.Contains(e.Name, "ObjectCreated")
}

type objectRef struct {
	Key  string `json:"key"`
	Size int64  `json:"size"`
}

type bucketRef struct {
	Name string `json:"name"`
}

// ossNotification is the Aliyun OSS event notification body
type ossNotification struct {
	Events []struct {
		EventName string `json:"eventName"`
		OSS       struct {
			Bucket bucketRef `json:"bucket"`
			Object objectRef `json:"object"`
		} `json:"oss"`
	} `json:"events"`
}

// s3Notification is the S3 event notification body. Object keys are URL encoded.
type s3Notification struct {
	Records []struct {
		EventName string `json:"eventName"`
		S3        struct {
			Bucket bucketRef `json:"bucket"`
			Object objectRef `json:"object"`
		} `json:"s3"`
	} `json:"Records"`
}

// ParseObjectEvents decodes an OSS or S3 object notification
func ParseObjectEvents(payload []byte) ([]ObjectEvent, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(payload, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedEvent, err)
	}

	switch {
	case top["events"] != nil:
		var n ossNotification
		if err := json.Unmarshal(payload, &n); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedEvent, err)
		}
		events := make([]ObjectEvent, 0, len(n.Events))
		for _, e := range n.Events {
			events = append(events, ObjectEvent{
				Source: "oss",
				Name:   e.EventName,
				Bucket: e.OSS.Bucket.Name,
				Key:    e.OSS.Object.Key,
				Size:   e.OSS.Object.Size,
			})
		}
		return events, nil

	case top["Records"] != nil:
		var n s3Notification
		if err := json.Unmarshal(payload, &n); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedEvent, err)
		}
		events := make([]ObjectEvent, 0, len(n.Records))
		for _, r := range n.Records {
			key, err := url.QueryUnescape(r.S3.Object.Key)
			if err != nil {
				return nil, fmt.Errorf("%w: bad object key %q: %v", ErrUnsupportedEvent, r.S3.Object.Key, err)
			}
			events = append(events, ObjectEvent{
				Source: "s3",
				Name:   r.EventName,
				Bucket: r.S3.Bucket.Name,
				Key:    key,
				Size:   r.S3.Object.Size,
			})
		}
		return events, nil
	}

	return nil, ErrUnsupportedEvent
}
