package util

import (
	"reflect"
	"testing"
)

func TestExtractTagsUniqueLowercase(t *testing.T) {
	input := "Run #Morning and #morning then #Cardio"
	got := ExtractTags(input)
	want := []string{"morning", "cardio"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ExtractTags() = %v, want %v", got, want)
	}
}

func TestExtractTagsNone(t *testing.T) {
	if got := ExtractTags("plain name, no tags"); len(got) != 0 {
		t.Fatalf("ExtractTags() = %v, want empty", got)
	}
}
