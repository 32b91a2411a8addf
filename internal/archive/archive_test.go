package archive

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

func TestParseS3URL(t *testing.T) {
	tests := []struct {
		input  string
		bucket string
		prefix string
		err    bool
	}{
		{"s3://bucket", "bucket", "", false},
		{"s3://bucket/", "bucket", "", false},
		{"s3://bucket/downloads/2025/", "bucket", "downloads/2025", false},
		{"s3:///key", "", "", true},
		{"https://bucket/key", "", "", true},
	}
	for _, test := range tests {
		bucket, prefix, err := ParseS3URL(test.input)
		if (err != nil) != test.err {
			t.Errorf("ParseS3URL(%q) error = %v, want error %v", test.input, err, test.err)
			continue
		}
		if bucket != test.bucket || prefix != test.prefix {
			t.Errorf("ParseS3URL(%q) = %q, %q, expected %q, %q", test.input, bucket, prefix, test.bucket, test.prefix)
		}
	}
}

type fakeS3 struct {
	objects map[string][]byte
	puts    int
}

func (f *fakeS3) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	f.puts++
	f.objects[*input.Bucket+"/"+*input.Key] = data
	return &manager.UploadOutput{Key: input.Key}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	data, ok := f.objects[*params.Bucket+"/"+*params.Key]
	if !ok {
		return nil, errors.New("not found")
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func TestUploadSkipsExistingObject(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "movie.mkv")
	if err := os.WriteFile(local, []byte("frames"), 0644); err != nil {
		t.Fatal(err)
	}
	fake := &fakeS3{objects: map[string][]byte{}}
	u := &Uploader{bucket: "media", prefix: "incoming", uploader: fake, head: fake, log: zerolog.Nop()}

	locations, err := u.UploadAll(context.Background(), []string{local, local})
	if err != nil {
		t.Fatalf("UploadAll: %v", err)
	}
	if len(locations) != 2 || locations[0] != "s3://media/incoming/movie.mkv" {
		t.Errorf("unexpected locations %v", locations)
	}
	if fake.puts != 1 {
		t.Errorf("expected a single upload, got %d", fake.puts)
	}
	if string(fake.objects["media/incoming/movie.mkv"]) != "frames" {
		t.Error("uploaded content mismatch")
	}
}

func TestUploadMissingFile(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	u := &Uploader{bucket: "media", uploader: fake, head: fake, log: zerolog.Nop()}
	if _, err := u.Upload(context.Background(), filepath.Join(t.TempDir(), "gone.bin")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
