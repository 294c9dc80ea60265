// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package sqlitetarget

import (
	"github.com/mobiletoly/go-objsync/internal/docstore"
	"github.com/mobiletoly/go-objsync/objsync"
)

// NewDocumentAdapter returns an adapter storing objsync.Document values of
// type t in objsync_documents. deps are the types t depends on.
func NewDocumentAdapter(t objsync.EntityType, deps ...objsync.EntityType) objsync.DaoAdapter {
	return docstore.NewAdapter(t, deps...)
}

// NewAssociatedDocumentAdapter returns an adapter for documents with
// composite guids. ownerPositions maps each owner type to the position of its
// guid within the composite guid.
func NewAssociatedDocumentAdapter(t objsync.EntityType, ownerPositions map[objsync.EntityType]int) objsync.AssociatedDaoAdapter {
	return docstore.NewAssociatedAdapter(t, ownerPositions)
}
