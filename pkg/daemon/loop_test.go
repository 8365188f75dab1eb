package daemon

import (
	"sync"
	"testing"
	"time"
)

func TestTickRecorder_GetRecordsIn(t *testing.T) {
	type fields struct {
		MaxRecordCount int
		LastTickTimes  []time.Time
	}
	type args struct {
		last time.Duration
	}
	tests := []struct {
		name   string
		fields fields
		args   args
		want   int
	}{
		{
			name: "test noncontinuous records",
			fields: fields{
				MaxRecordCount: 10,
				LastTickTimes: []time.Time{
					time.Now().Add(-time.Second * 31).Add(-10 * time.Millisecond),
					time.Now().Add(-time.Second * 20).Add(-10 * time.Millisecond),
					time.Now().Add(-time.Second * 10).Add(-10 * time.Millisecond),
				},
			},
			args: args{
				last: time.Second * 40,
			},
			want: 2,
		},
		{
			name: "test continuous records",
			fields: fields{
				MaxRecordCount: 10,
				LastTickTimes: []time.Time{
					time.Now().Add(-time.Second * 70).Add(-10 * time.Millisecond),
					time.Now().Add(-time.Second * 60).Add(-10 * time.Millisecond),
					time.Now().Add(-time.Second * 40).Add(-10 * time.Millisecond),
					time.Now().Add(-time.Second * 30).Add(-10 * time.Millisecond),
					time.Now().Add(-time.Second * 20).Add(-10 * time.Millisecond),
					time.Now().Add(-time.Second * 10).Add(-10 * time.Millisecond),
				},
			},
			args: args{
				last: time.Second * 50,
			},
			want: 4,
		},
		{
			name: "test stale last record",
			fields: fields{
				MaxRecordCount: 10,
				LastTickTimes: []time.Time{
					time.Now().Add(-time.Second * 40).Add(-10 * time.Millisecond),
					time.Now().Add(-time.Second * 30).Add(-10 * time.Millisecond),
					time.Now().Add(-time.Second * 20).Add(-10 * time.Millisecond),
					time.Now().Add(-time.Second * 15).Add(-10 * time.Millisecond),
				},
			},
			args: args{
				last: time.Second * 50,
			},
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &TimeSeriesRecorder{
				MaxRecordCount: tt.fields.MaxRecordCount,
				Interval:       time.Second * 10,
				LastTickTimes:  tt.fields.LastTickTimes,
				mu:             &sync.Mutex{},
			}
			if got := r.GetRecordsIn(tt.args.last); got != tt.want {
				t.Errorf("GetRecordsIn() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTickRecorder_AddRecord(t *testing.T) {
	r := NewTimeSeriesRecorder(3, 100*time.Millisecond)
	base := time.Now()

	if gap := r.AddRecord(base); gap != 0 {
		t.Fatalf("first gap = %v, want 0", gap)
	}
	if gap := r.AddRecord(base.Add(100 * time.Millisecond)); gap != 100*time.Millisecond {
		t.Fatalf("gap = %v, want 100ms", gap)
	}
	r.AddRecord(base.Add(200 * time.Millisecond))
	r.AddRecord(base.Add(300 * time.Millisecond))

	if got := len(r.LastTickTimes); got != 3 {
		t.Fatalf("kept %d records, want 3", got)
	}
	if got := r.GetLastRecord(); !got.Equal(base.Add(300 * time.Millisecond)) {
		t.Fatalf("GetLastRecord() = %v", got)
	}
}

func TestTickRecorder_Healthy(t *testing.T) {
	r := NewTimeSeriesRecorder(10, 100*time.Millisecond)
	if r.Healthy() {
		t.Fatalf("recorder without records must not be healthy")
	}

	r.AddRecord(time.Now())
	if !r.Healthy() {
		t.Fatalf("fresh record must be healthy")
	}

	r = NewTimeSeriesRecorder(10, 100*time.Millisecond)
	r.AddRecord(time.Now().Add(-5 * time.Second))
	if r.Healthy() {
		t.Fatalf("stale record must not be healthy")
	}
}
