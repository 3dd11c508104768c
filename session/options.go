/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package session

// Options fixes the behavior of every session a Factory opens. The zero
// value is the default: updates write every column and related objects stay
// unloaded.
type Options struct {
	// DetectChanges makes entity updates load the stored row inside the
	// session, compare it column by column against the supplied entity, and
	// write only the columns that differ. An update with no differing
	// columns issues no statement at all.
	DetectChanges bool

	// LoadRelations makes lookups and collection views select every relation
	// declared on the model, so related objects arrive populated without the
	// caller composing the query.
	LoadRelations bool
}
