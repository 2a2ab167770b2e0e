package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

type envelope struct {
	Args []any `json:"args"`
}

// Decode parses a raw payload of the form {"args":[...]} into the event
// variant for topic.
func Decode(topic string, payload []byte) (Event, error) {
	t := Topic(topic)
	if !t.IsValid() {
		return nil, &DecodeError{Topic: topic, Err: ErrUnknownTopic}
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var env envelope
	if err := dec.Decode(&env); err != nil {
		return nil, &DecodeError{Topic: topic, Err: ErrMalformedPayload, Reason: err.Error()}
	}
	if env.Args == nil {
		return nil, &DecodeError{Topic: topic, Err: ErrMalformedPayload, Reason: "missing args"}
	}

	a := args{topic: topic, values: env.Args}
	switch t {
	case TopicChangeMode:
		return decodeOne(a, func(id string) Event { return ChangeMode{BundleID: id} })
	case TopicDeleteBundle:
		return decodeOne(a, func(id string) Event { return DeleteBundle{BundleID: id} })
	case TopicUpdateFromDownload:
		return decodeOne(a, func(id string) Event { return UpdateFromDownload{BundleID: id} })
	case TopicWriteResource:
		id, name, err := decodePair(a)
		if err != nil {
			return nil, err
		}
		return WriteResource{BundleID: id, FileName: name}, nil
	case TopicDeleteResource:
		id, path, err := decodePair(a)
		if err != nil {
			return nil, err
		}
		return DeleteResource{BundleID: id, ResourcePath: path}, nil
	case TopicCreateJob:
		jobID, bundleID, err := decodePair(a)
		if err != nil {
			return nil, err
		}
		return CreateJob{JobID: jobID, BundleID: bundleID}, nil
	case TopicJob:
		return decodeJob(a)
	default:
		return decodeDownloadStatus(a, t == TopicDownloadSpecStatus)
	}
}

func decodeOne(a args, build func(string) Event) (Event, error) {
	if err := a.arity(1); err != nil {
		return nil, err
	}
	id, err := a.str(0)
	if err != nil {
		return nil, err
	}
	return build(id), nil
}

func decodePair(a args) (string, string, error) {
	if err := a.arity(2); err != nil {
		return "", "", err
	}
	first, err := a.str(0)
	if err != nil {
		return "", "", err
	}
	second, err := a.str(1)
	if err != nil {
		return "", "", err
	}
	return first, second, nil
}

// uploader/job carries either
//
//	["updated", entryId, jobId, [toUpload, _, _, _, _, uploaded]]
//	["state"|"status", jobId, value]
func decodeJob(a args) (Event, error) {
	if len(a.values) == 0 {
		return nil, a.fail(ErrArity, "want at least 1 argument")
	}
	kind, err := a.str(0)
	if err != nil {
		return nil, err
	}
	switch kind {
	case "updated":
		if err := a.arity(4); err != nil {
			return nil, err
		}
		entryID, err := a.str(1)
		if err != nil {
			return nil, err
		}
		jobID, err := a.str(2)
		if err != nil {
			return nil, err
		}
		raw, ok := a.values[3].([]any)
		if !ok || len(raw) < 6 {
			return nil, a.fail(ErrArgumentType, "argument 3: want progress array of 6 values")
		}
		inner := args{topic: a.topic, values: raw}
		toUpload, err := inner.integer(0)
		if err != nil {
			return nil, err
		}
		uploaded, err := inner.integer(5)
		if err != nil {
			return nil, err
		}
		return JobUpdated{EntryID: entryID, JobID: jobID, ToUpload: toUpload, Uploaded: uploaded}, nil
	case "state", "status":
		if err := a.arity(3); err != nil {
			return nil, err
		}
		jobID, err := a.str(1)
		if err != nil {
			return nil, err
		}
		value, err := a.str(2)
		if err != nil {
			return nil, err
		}
		return JobState{Kind: kind, JobID: jobID, Value: value}, nil
	default:
		return nil, a.fail(ErrArgumentType, fmt.Sprintf("unknown job event %q", kind))
	}
}

func decodeDownloadStatus(a args, spec bool) (Event, error) {
	if err := a.arity(3); err != nil {
		return nil, err
	}
	id, err := a.str(0)
	if err != nil {
		return nil, err
	}
	done, err := a.integer(1)
	if err != nil {
		return nil, err
	}
	total, err := a.integer(2)
	if err != nil {
		return nil, err
	}
	return DownloadStatus{BundleID: id, ResourcesDownloaded: done, ResourcesToDownload: total, Spec: spec}, nil
}

type args struct {
	topic  string
	values []any
}

func (a args) fail(err error, reason string) error {
	return &DecodeError{Topic: a.topic, Err: err, Reason: reason}
}

func (a args) arity(n int) error {
	if len(a.values) != n {
		return a.fail(ErrArity, fmt.Sprintf("want %d, got %d", n, len(a.values)))
	}
	return nil
}

// str accepts strings and integral numbers, since ids are sometimes sent
// unquoted.
func (a args) str(i int) (string, error) {
	switch v := a.values[i].(type) {
	case string:
		if v == "" {
			return "", a.fail(ErrArgumentType, fmt.Sprintf("argument %d: empty string", i))
		}
		return v, nil
	case json.Number:
		return v.String(), nil
	default:
		return "", a.fail(ErrArgumentType, fmt.Sprintf("argument %d: want string, got %T", i, v))
	}
}

// integer accepts JSON numbers and numeric strings.
func (a args) integer(i int) (int, error) {
	var s string
	switch v := a.values[i].(type) {
	case json.Number:
		s = v.String()
	case string:
		s = v
	default:
		return 0, a.fail(ErrArgumentType, fmt.Sprintf("argument %d: want number, got %T", i, v))
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, a.fail(ErrArgumentType, fmt.Sprintf("argument %d: %q is not a number", i, s))
	}
	return int(math.Floor(f)), nil
}
