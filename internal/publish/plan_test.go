package publish

import (
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/thiagofdso/chat-cloner/internal/config"
	"github.com/thiagofdso/chat-cloner/internal/media"
	"github.com/thiagofdso/chat-cloner/internal/scanner"
)

func TestPackVolumes(t *testing.T) {
	file := func(name string, size int64) scanner.File {
		return scanner.File{RelPath: name, Size: size}
	}

	tests := []struct {
		name  string
		files []scanner.File
		limit int64
		want  [][]string
	}{
		{
			name:  "всё в один том",
			files: []scanner.File{file("a", 10), file("b", 20), file("c", 30)},
			limit: 100,
			want:  [][]string{{"a", "b", "c"}},
		},
		{
			name:  "жадная нарезка",
			files: []scanner.File{file("a", 60), file("b", 50), file("c", 40)},
			limit: 100,
			want:  [][]string{{"a"}, {"b", "c"}},
		},
		{
			name:  "негабаритный файл отдельным томом",
			files: []scanner.File{file("a", 10), file("b", 500), file("c", 10)},
			limit: 100,
			want:  [][]string{{"a"}, {"b"}, {"c"}},
		},
		{
			name:  "негабаритный первым",
			files: []scanner.File{file("a", 500), file("b", 10)},
			limit: 100,
			want:  [][]string{{"a"}, {"b"}},
		},
		{
			name:  "пусто",
			files: nil,
			limit: 100,
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			volumes := packVolumes(tt.files, tt.limit)
			got := make([][]string, 0, len(volumes))
			for _, v := range volumes {
				names := make([]string, 0, len(v))
				for _, f := range v {
					names = append(names, f.RelPath)
				}
				got = append(got, names)
			}
			if len(got) == 0 {
				got = nil
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("packVolumes() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildGroups(t *testing.T) {
	seg := func(rel string, minutes int, size int64, single bool) segment {
		return segment{Rel: rel, Duration: time.Duration(minutes) * time.Minute, Size: size, Single: single}
	}

	tests := []struct {
		name     string
		segments []segment
		duration time.Duration
		size     int64
		want     [][]string
	}{
		{
			name:     "всё в одну группу",
			segments: []segment{seg("a", 10, 1, false), seg("b", 20, 1, false)},
			duration: time.Hour,
			size:     100,
			want:     [][]string{{"a", "b"}},
		},
		{
			name:     "нарезка по длительности",
			segments: []segment{seg("a", 40, 1, false), seg("b", 30, 1, false), seg("c", 20, 1, false)},
			duration: time.Hour,
			size:     100,
			want:     [][]string{{"a"}, {"b", "c"}},
		},
		{
			name:     "нарезка по размеру",
			segments: []segment{seg("a", 1, 60, false), seg("b", 1, 50, false)},
			duration: time.Hour,
			size:     100,
			want:     [][]string{{"a"}, {"b"}},
		},
		{
			name:     "single рвёт текущую группу",
			segments: []segment{seg("a", 1, 1, false), seg("b", 1, 1, true), seg("c", 1, 1, false)},
			duration: time.Hour,
			size:     100,
			want:     [][]string{{"a"}, {"b"}, {"c"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			groups := buildGroups(tt.segments, tt.duration, tt.size)
			got := make([][]string, 0, len(groups))
			for _, g := range groups {
				names := make([]string, 0, len(g.Segments))
				for _, s := range g.Segments {
					names = append(names, s.Rel)
				}
				got = append(got, names)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("buildGroups() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestChooseAction(t *testing.T) {
	probe := func(v, a, format string) *media.ProbeResult {
		return &media.ProbeResult{VideoCodec: v, AudioCodec: a, FormatName: format}
	}

	tests := []struct {
		name  string
		probe *media.ProbeResult
		plan  config.ReencodePlan
		want  Action
	}{
		{"нормализованное при плане single", probe("h264", "aac", "mov,mp4,m4a"), config.PlanSingle, ActionSingle},
		{"нормализованное при плане group", probe("h264", "aac", "mov,mp4,m4a"), config.PlanGroup, ActionJoin},
		{"чужой видеокодек", probe("hevc", "aac", "mov,mp4,m4a"), config.PlanGroup, ActionReencode},
		{"чужой аудиокодек", probe("h264", "mp3", "mov,mp4,m4a"), config.PlanGroup, ActionReencode},
		{"без аудио", probe("h264", "", "mov,mp4,m4a"), config.PlanSingle, ActionSingle},
		{"чужой контейнер", probe("h264", "aac", "matroska,webm"), config.PlanGroup, ActionReencode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := chooseAction(tt.probe, tt.plan); got != tt.want {
				t.Errorf("chooseAction() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReportRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "video_details.csv")
	rows := []ReportRow{
		{
			File:       "раздел 1/урок, с запятой.mp4",
			Duration:   90*time.Second + 500*time.Millisecond,
			Width:      1920,
			Height:     1080,
			VideoCodec: "h264",
			AudioCodec: "aac",
			Size:       1 << 20,
			Action:     ActionJoin,
		},
		{File: "урок2.avi", Duration: time.Minute, VideoCodec: "mpeg4", Action: ActionReencode},
	}

	if err := writeReport(path, rows); err != nil {
		t.Fatalf("writeReport() error = %v", err)
	}
	got, err := loadReport(path)
	if err != nil {
		t.Fatalf("loadReport() error = %v", err)
	}
	if !reflect.DeepEqual(got, rows) {
		t.Errorf("loadReport() = %+v, want %+v", got, rows)
	}
}

func TestJoinPlanRoundTripKeepsOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "join_plan.csv")
	groups := []joinedGroup{
		{Name: "проект-002.mp4", Segments: []segment{
			{Rel: "б/вторая.mp4", Duration: 2 * time.Minute},
			{Rel: "в/третья.mp4", Duration: 3 * time.Minute},
		}},
		{Name: "проект-001.mp4", Segments: []segment{
			{Rel: "а/первая.mp4", Duration: time.Minute},
		}},
	}

	if err := writeJoinPlan(path, groups); err != nil {
		t.Fatalf("writeJoinPlan() error = %v", err)
	}
	got, err := loadJoinPlan(path)
	if err != nil {
		t.Fatalf("loadJoinPlan() error = %v", err)
	}

	// Порядок групп и сегментов сохраняется, как был записан
	if len(got) != 2 || got[0].Name != "проект-002.mp4" || got[1].Name != "проект-001.mp4" {
		t.Fatalf("порядок групп нарушен: %+v", got)
	}
	if got[0].Segments[0].Rel != "б/вторая.mp4" || got[0].Segments[1].Rel != "в/третья.mp4" {
		t.Errorf("порядок сегментов нарушен: %+v", got[0].Segments)
	}
	if got[0].Segments[1].Duration != 3*time.Minute {
		t.Errorf("Duration = %s, want 3m", got[0].Segments[1].Duration)
	}
}

func TestBuildUploadPlan(t *testing.T) {
	cfg := config.DefaultConfig()
	p := &Pipeline{cfg: cfg}

	groups := []joinedGroup{
		{Name: "проект-001.mp4"},
		{Name: "проект-002.mp4"},
	}
	zips := []string{"проект-001.zip"}
	plan := p.buildUploadPlan(groups, p.videoHashtags(len(groups)), zips)

	wantFiles := []string{
		"joined/проект-001.mp4",
		"joined/проект-002.mp4",
		"zipped/проект-001.zip",
	}
	if len(plan) != len(wantFiles) {
		t.Fatalf("план содержит %d строк, want %d", len(plan), len(wantFiles))
	}
	for i, want := range wantFiles {
		if plan[i].File != want {
			t.Errorf("план[%d].File = %q, want %q", i, plan[i].File, want)
		}
	}

	// DESCRIPTIONS_AUTO_ADAPT перенумеровывает подписи видео по порядку
	if plan[0].Description != "#F001 проект-001.mp4" {
		t.Errorf("подпись видео = %q, want «#F001 проект-001.mp4»", plan[0].Description)
	}
	if plan[1].Description != "#F002 проект-002.mp4" {
		t.Errorf("подпись видео = %q, want «#F002 проект-002.mp4»", plan[1].Description)
	}
	if plan[2].Description != "#Материалы проект-001.zip" {
		t.Errorf("подпись тома = %q, want «#Материалы проект-001.zip»", plan[2].Description)
	}
}

func TestBuildSummary(t *testing.T) {
	cfg := config.DefaultConfig()
	p := &Pipeline{cfg: cfg}

	groups := []joinedGroup{
		{Name: "проект-001.mp4", Segments: []segment{
			{Rel: "раздел/01 введение.mp4", Duration: 90 * time.Second},
			{Rel: "раздел/02 основы.mp4", Duration: time.Hour},
		}},
	}
	summary := p.buildSummary(groups, p.videoHashtags(1), []string{"проект-001.zip"},
		10*time.Second, "Шапка курса", "Подвал")

	wantLines := []string{
		"Шапка курса",
		"",
		"#F001 проект-001.mp4",
		"  00:00:00 01 введение",
		// Второй сегмент начинается после первого и переходного клипа
		"  00:01:40 02 основы",
		"",
		"Материалы",
		"#Материалы",
		"  проект-001.zip",
		"",
		"Подвал",
	}
	got := strings.Split(strings.TrimRight(summary, "\n"), "\n")
	if !reflect.DeepEqual(got, wantLines) {
		t.Errorf("сводка:\n%s\nожидалось:\n%s", strings.Join(got, "\n"), strings.Join(wantLines, "\n"))
	}
}

func TestUploadPlanRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "upload_plan.csv")
	plan := []PlanEntry{
		{File: "joined/проект-001.mp4", Description: "#F001 проект-001.mp4"},
		{File: "zipped/проект-001.zip", Description: "#Материалы, с запятой"},
	}
	if err := writeUploadPlan(path, plan); err != nil {
		t.Fatalf("writeUploadPlan() error = %v", err)
	}
	got, err := loadUploadPlan(path)
	if err != nil {
		t.Fatalf("loadUploadPlan() error = %v", err)
	}
	if !reflect.DeepEqual(got, plan) {
		t.Errorf("loadUploadPlan() = %+v, want %+v", got, plan)
	}
}

func TestDeriveProject(t *testing.T) {
	tests := []struct {
		name   string
		source string
		maxLen int
		want   string
	}{
		{"обычная папка", "/data/Курс Го", 64, "Курс Го"},
		{"запрещённые символы", "/data/Курс: часть 1", 64, "Курс_ часть 1"},
		{"усечение по рунам", "/data/абвгдеж", 4, "абвг"},
		{"корень", "/", 64, "project"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveProject(tt.source, tt.maxLen); got != tt.want {
				t.Errorf("DeriveProject(%q) = %q, want %q", tt.source, got, tt.want)
			}
		})
	}
}

func TestFormatClock(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00:00"},
		{59 * time.Second, "00:00:59"},
		{90 * time.Minute, "01:30:00"},
		{25*time.Hour + 3*time.Second, "25:00:03"},
	}
	for _, tt := range tests {
		if got := formatClock(tt.d); got != tt.want {
			t.Errorf("formatClock(%s) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestReencodedName(t *testing.T) {
	tests := []struct {
		rel  string
		want string
	}{
		{"урок.avi", "урок.mp4"},
		{"раздел/урок.webm", "раздел_урок.mp4"},
		{"а/б/в.mkv", "а_б_в.mp4"},
	}
	for _, tt := range tests {
		if got := reencodedName(tt.rel); got != tt.want {
			t.Errorf("reencodedName(%q) = %q, want %q", tt.rel, got, tt.want)
		}
	}
}
