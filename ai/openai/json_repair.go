// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package openai

import "strings"

// repairJSON fixes a formatting defect some models produce in JSON mode:
// object keys missing their opening quote, e.g. `{title": "x"}`. The
// scan looks for a bare word right after `{` or `,` that runs into `":`
// and reinserts the quote. Anything else passes through untouched.
func repairJSON(s string) string {
	in := []rune(s)
	var out strings.Builder
	out.Grow(len(s) + 16)

	i := 0
	for i < len(in) {
		ch := in[i]
		out.WriteRune(ch)
		i++
		if ch != '{' && ch != ',' {
			continue
		}

		for i < len(in) && isSpace(in[i]) {
			out.WriteRune(in[i])
			i++
		}

		if i >= len(in) || in[i] == '"' || !isLetter(in[i]) {
			continue
		}

		keyStart := i
		for i < len(in) && (isLetter(in[i]) || in[i] == '_' || in[i] == ' ') {
			i++
		}

		key := string(in[keyStart:i])
		if i+1 < len(in) && in[i] == '"' && in[i+1] == ':' {
			// Bare key running into `":` — restore the opening quote.
			out.WriteRune('"')
			out.WriteString(strings.TrimSpace(key))
		} else {
			out.WriteString(key)
		}
	}

	return out.String()
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t'
}
