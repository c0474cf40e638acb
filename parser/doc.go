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


// Package parser turns uploaded paper files into text plus bibliographic
// metadata.
//
// Two backends implement Parser:
//
//   - LayoutParser: sends the file to a docling-serve compatible conversion
//     service and reads back markdown. Best fidelity for tables and formulas,
//     but slow and only available when the service answers its health check.
//   - StructuralParser: reads PDFs directly with pdfcpu (page count, info
//     dictionary, outline, content-stream text). Always available. Without a
//     PDF engine it returns a labelled placeholder result instead of failing.
//
// New selects a backend by Kind. KindAuto prefers the layout backend when it
// is available and otherwise uses the structural one; unavailability narrows
// the choice but is never an error.
//
// Title, authors and abstract that a backend cannot supply are filled by the
// heuristics in heuristics.go, which never fail.
package parser
