package stream

import (
	"context"
	"testing"

	"github.com/mohammed-shakir/raster-intake/internal/errkind"
	"github.com/mohammed-shakir/raster-intake/internal/pipeline"
	"github.com/mohammed-shakir/raster-intake/internal/stac"
)

type procStub struct {
	got pipeline.Request
	err error
}

func (p *procStub) Process(ctx context.Context, req pipeline.Request) (pipeline.Outcome, error) {
	p.got = req
	if ctx.Err() != nil {
		return pipeline.Outcome{}, ctx.Err()
	}
	return pipeline.Outcome{Item: stac.Item{ID: "id"}}, p.err
}

func TestIntakeHandler_Outcomes(t *testing.T) {
	cases := []struct {
		name string
		body string
		err  error
		want Outcome
	}{
		{"ok", `{"image_uri":"s3://in/a.tif","collection_id":"C","tile_server_url":"https://t"}`, nil, Ack},
		{"undecodable", `{"image_uri":`, nil, DeadLetter},
		{"no uri", `{"item_id":"x"}`, nil, DeadLetter},
		{"transient", `{"image_uri":"s3://in/a.tif"}`, errkind.Upload.New("503"), Retry},
		{"defect", `{"image_uri":"s3://in/a.tif"}`, errkind.UnreadableImage.New("bad"), DeadLetter},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := &procStub{err: tc.err}
			h := NewIntakeHandler(p, 0, nil)
			if got := h.Consume(context.Background(), Message{Value: []byte(tc.body)}); got != tc.want {
				t.Fatalf("outcome=%v want %v", got, tc.want)
			}
		})
	}

	p := &procStub{}
	NewIntakeHandler(p, 0, nil).Consume(context.Background(), Message{Value: []byte(cases[0].body)})
	if p.got.SourceRef != "s3://in/a.tif" || p.got.CollectionID != "C" || p.got.TileServerURL != "https://t" {
		t.Fatalf("request=%+v", p.got)
	}
}

func TestIntakeHandler_DetachedFromSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &procStub{}
	if got := NewIntakeHandler(p, 0, nil).Consume(ctx, Message{Value: []byte(`{"image_uri":"a.tif"}`)}); got != Ack {
		t.Fatalf("revoked session must not abort the item, got %v", got)
	}
}
