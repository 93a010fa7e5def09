package agent

import (
	"reflect"
	"testing"

	"github.com/pavelanni/essayeval/internal/model"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		role         model.Role
		wantScore    float64
		wantFallback bool
	}{
		{"plain object", `{"score": 82, "strengths": ["clear"]}`, model.RoleContent, 82, false},
		{"code fence", "```json\n{\"score\": 77}\n```", model.RoleStructure, 77, false},
		{"prose around object", "Here is my evaluation:\n{\"score\": 64}\nThanks.", model.RoleLanguage, 64, false},
		{"numeric string", `{"score": "85%"}`, model.RoleContent, 85, false},
		{"fraction of ten", `{"score": "8/10"}`, model.RoleStructure, 80, false},
		{"braces in prose before object", `Use {braces} sparingly. {"score": 88}`, model.RoleContent, 88, false},
		{"stray brace before object", "Scores below } and { here:\n```\n{\"score\": 71}", model.RoleLanguage, 71, false},
		{"truncated object with nested score", `{"score": 80, "organization": {"score": 66}, "strengths": ["a"`,
			model.RoleStructure, FallbackStructureScore, true},
		{"broken object with nested score", `{"score": 80, "organization": {"score": 66}, oops}`,
			model.RoleStructure, FallbackStructureScore, true},
		{"out of range", `{"score": 140}`, model.RoleContent, 100, false},
		{"negative", `{"score": -3}`, model.RoleContent, 0, false},
		{"score object", `{"score": {"score": 58, "note": "ok"}}`, model.RoleStructure, 58, false},
		{"not json", `I cannot evaluate this essay.`, model.RoleContent, FallbackContentScore, true},
		{"truncated json", `{"score": 80, "strengths": ["a"`, model.RoleStructure, FallbackStructureScore, true},
		{"missing score", `{"grammar": 90}`, model.RoleLanguage, FallbackLanguageScore, true},
		{"non-numeric score", `{"score": "excellent"}`, model.RoleLanguage, FallbackLanguageScore, true},
		{"array instead of object", `[{"score": 90}]`, model.RoleContent, 90, false},
		{"empty", ``, model.RoleStructure, FallbackStructureScore, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Decode(tt.raw, tt.role)
			if out.Fallback != tt.wantFallback {
				t.Errorf("Fallback = %v, want %v", out.Fallback, tt.wantFallback)
			}
			if out.Role != tt.role {
				t.Errorf("Role = %q, want %q", out.Role, tt.role)
			}
			score, ok := out.Score()
			if !ok {
				t.Fatal("decoded output must always carry a score")
			}
			if score != tt.wantScore {
				t.Errorf("Score() = %v, want %v", score, tt.wantScore)
			}
		})
	}
}

func TestFallbackBand(t *testing.T) {
	for _, role := range model.Roles {
		out := Fallback(role)
		if out.Role != role {
			t.Errorf("Fallback(%q).Role = %q", role, out.Role)
		}
		score, ok := out.Score()
		if !ok || score < 60 || score > 75 {
			t.Errorf("Fallback(%q) score = %v, want within [60,75]", role, score)
		}
		if len(out.Strings("strengths")) == 0 || len(out.Strings("weaknesses")) == 0 || len(out.Strings("suggestions")) == 0 {
			t.Errorf("Fallback(%q) should carry placeholder feedback", role)
		}
	}
}

func TestFallbackUnknownRoleUsesContentShape(t *testing.T) {
	out := Fallback(model.Role("mystery"))
	if out.Role != model.RoleContent {
		t.Errorf("Role = %q, want content", out.Role)
	}
	if _, ok := out.Number("factualAccuracy"); !ok {
		t.Error("unknown role should get the content fields")
	}

	decoded := Decode("garbage", model.Role("mystery"))
	if !reflect.DeepEqual(decoded.Fields, Fallback(model.RoleContent).Fields) {
		t.Error("decoding for an unknown role should fall back to the content object")
	}
}

func TestFallbackIsFresh(t *testing.T) {
	a := Fallback(model.RoleLanguage)
	a.Fields["score"] = 1.0
	b := Fallback(model.RoleLanguage)
	if s, _ := b.Score(); s != FallbackLanguageScore {
		t.Errorf("mutating one fallback leaked into another: score = %v", s)
	}
}

func TestOutputAccessors(t *testing.T) {
	out := Decode(`{
		"score": 70,
		"clarity": "72/100",
		"organization": {"score": 66},
		"vocabularyLevel": "  advanced ",
		"strengths": ["  concise ", "", 4, "well argued"],
		"weaknesses": "too short",
		"suggestions": null
	}`, model.RoleLanguage)

	if v, ok := out.Number("clarity"); !ok || v != 72 {
		t.Errorf("Number(clarity) = %v, %v", v, ok)
	}
	if v, ok := out.Number("organization"); !ok || v != 66 {
		t.Errorf("Number(organization) = %v, %v", v, ok)
	}

	fractions := []struct {
		in   string
		want float64
	}{
		{"72/100", 72},
		{"8/10", 80},
		{" 3.5 / 5 ", 70},
		{"3/0", 3},
		{"7/-2", 7},
		{"6/x", 6},
		{"90%", 90},
	}
	for _, tt := range fractions {
		o := Output{Fields: map[string]any{"v": tt.in}}
		if v, ok := o.Number("v"); !ok || v != tt.want {
			t.Errorf("Number(%q) = %v, %v; want %v", tt.in, v, ok, tt.want)
		}
	}
	if _, ok := out.Number("missing"); ok {
		t.Error("Number(missing) should report absence")
	}
	if got := out.String("vocabularyLevel"); got != "advanced" {
		t.Errorf("String(vocabularyLevel) = %q", got)
	}
	if got := out.Strings("strengths"); !reflect.DeepEqual(got, []string{"concise", "well argued"}) {
		t.Errorf("Strings(strengths) = %v", got)
	}
	if got := out.Strings("weaknesses"); !reflect.DeepEqual(got, []string{"too short"}) {
		t.Errorf("Strings(weaknesses) = %v", got)
	}
	if got := out.Strings("suggestions"); len(got) != 0 {
		t.Errorf("Strings(suggestions) = %v, want empty", got)
	}
}
