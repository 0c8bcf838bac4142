package tx

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net/url"
	"strings"

	"github.com/LiskArchive/lisk-sdk-sub000/core/state"
	"github.com/LiskArchive/lisk-sdk-sub000/core/types"
)

const (
	maxDappNameLength        = 32
	maxDappDescriptionLength = 160
	maxDappTagsLength        = 160
	maxDappLinkLength        = 2000
	maxDappCategory          = 8
)

var dappIconSuffixes = []string{".png", ".jpeg", ".jpg"}

// dapp registers a side-chain application. New registrations stop at the
// freeze height; applied history stays replayable.
type dapp struct {
	base
	names *reservations
	links *reservations
}

func newDapp(b base) *dapp {
	return &dapp{base: b, names: newReservations(), links: newReservations()}
}

func (*dapp) Type() types.TxType { return types.TxTypeDapp }

func (*dapp) Frozen() bool { return true }

func (h *dapp) CalculateFee(*types.Transaction, *types.Account) int64 {
	return h.params.Fees.Dapp
}

func (h *dapp) Verify(_ state.Store, tx *types.Transaction, _ *types.Account) error {
	if tx.RecipientID != "" {
		return ErrInvalidRecipient
	}
	if tx.Amount != 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, tx.Amount)
	}
	a := tx.Asset.Dapp
	if a == nil {
		return ErrInvalidAsset
	}
	if a.Category > maxDappCategory {
		return fmt.Errorf("%w: invalid application category", ErrInvalidDapp)
	}
	if a.Type != 0 {
		return fmt.Errorf("%w: invalid application type", ErrInvalidDapp)
	}
	if !isURL(a.Link) || !strings.HasSuffix(strings.ToLower(a.Link), ".zip") {
		return fmt.Errorf("%w: invalid application link", ErrInvalidDapp)
	}
	if a.Icon != "" {
		if !isURL(a.Icon) {
			return fmt.Errorf("%w: invalid icon link", ErrInvalidDapp)
		}
		if !hasAnySuffix(strings.ToLower(a.Icon), dappIconSuffixes) {
			return fmt.Errorf("%w: invalid icon file type", ErrInvalidDapp)
		}
	}
	name := strings.TrimSpace(a.Name)
	if name == "" || name != a.Name {
		return fmt.Errorf("%w: application name must not be blank or contain leading or trailing space", ErrInvalidDapp)
	}
	if len(a.Name) > maxDappNameLength {
		return fmt.Errorf("%w: application name is too long, maximum is %d characters", ErrInvalidDapp, maxDappNameLength)
	}
	if len(a.Description) > maxDappDescriptionLength {
		return fmt.Errorf("%w: application description is too long, maximum is %d characters", ErrInvalidDapp, maxDappDescriptionLength)
	}
	if a.Tags != "" {
		if len(a.Tags) > maxDappTagsLength {
			return fmt.Errorf("%w: application tags is too long, maximum is %d characters", ErrInvalidDapp, maxDappTagsLength)
		}
		seen := make(map[string]struct{})
		for _, tag := range strings.Split(a.Tags, ",") {
			tag = strings.TrimSpace(tag)
			if _, dup := seen[tag]; dup {
				return fmt.Errorf("%w: encountered duplicate tag %q", ErrInvalidDapp, tag)
			}
			seen[tag] = struct{}{}
		}
	}
	taken, err := h.txs.DappNameExists(a.Name)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("%w: %s", ErrDappNameTaken, a.Name)
	}
	taken, err = h.txs.DappLinkExists(a.Link)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("%w: %s", ErrDappLinkTaken, a.Link)
	}
	return nil
}

func isURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}

func (*dapp) GetBytes(tx *types.Transaction) ([]byte, error) {
	a := tx.Asset.Dapp
	if a == nil {
		return nil, ErrInvalidAsset
	}
	var buf bytes.Buffer
	buf.WriteString(a.Name)
	buf.WriteString(a.Description)
	buf.WriteString(a.Tags)
	buf.WriteString(a.Link)
	buf.WriteString(a.Icon)
	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], a.Type)
	buf.Write(u32[:])
	binary.LittleEndian.PutUint32(u32[:], a.Category)
	buf.Write(u32[:])
	return buf.Bytes(), nil
}

func (h *dapp) ApplyConfirmed(_ state.Store, tx *types.Transaction, _ *types.Block, _ *types.Account) error {
	h.names.release(tx.Asset.Dapp.Name)
	h.links.release(tx.Asset.Dapp.Link)
	return nil
}

func (*dapp) UndoConfirmed(state.Store, *types.Transaction, *types.Block, *types.Account) error {
	return nil
}

func (h *dapp) ApplyUnconfirmed(_ state.Store, tx *types.Transaction, _ *types.Account) error {
	a := tx.Asset.Dapp
	if h.names.has(a.Name) {
		return fmt.Errorf("%w: %s", ErrDappNameTaken, a.Name)
	}
	if h.links.has(a.Link) {
		return fmt.Errorf("%w: %s", ErrDappLinkTaken, a.Link)
	}
	h.names.reserve(a.Name)
	h.links.reserve(a.Link)
	return nil
}

func (h *dapp) UndoUnconfirmed(_ state.Store, tx *types.Transaction, _ *types.Account) error {
	h.names.release(tx.Asset.Dapp.Name)
	h.links.release(tx.Asset.Dapp.Link)
	return nil
}

func (*dapp) ObjectNormalize(tx *types.Transaction) error {
	a := tx.Asset.Dapp
	if a == nil {
		return invalid("asset.dapp", "required")
	}
	switch {
	case len(a.Name) < 1 || len(a.Name) > maxDappNameLength:
		return invalid("asset.dapp.name", "length must be 1..%d", maxDappNameLength)
	case len(a.Description) > maxDappDescriptionLength:
		return invalid("asset.dapp.description", "at most %d characters", maxDappDescriptionLength)
	case len(a.Tags) > maxDappTagsLength:
		return invalid("asset.dapp.tags", "at most %d characters", maxDappTagsLength)
	case len(a.Link) < 1 || len(a.Link) > maxDappLinkLength:
		return invalid("asset.dapp.link", "length must be 1..%d", maxDappLinkLength)
	case len(a.Icon) > maxDappLinkLength:
		return invalid("asset.dapp.icon", "at most %d characters", maxDappLinkLength)
	case a.Category > maxDappCategory:
		return invalid("asset.dapp.category", "must be 0..%d", maxDappCategory)
	}
	return nil
}

func (*dapp) DBRead(row *types.TxRow) (*types.Asset, error) {
	if row.DappName == "" {
		return nil, nil
	}
	return &types.Asset{Dapp: &types.DappAsset{
		Category:    row.DappCategory,
		Name:        row.DappName,
		Description: row.DappDescription,
		Tags:        row.DappTags,
		Type:        row.DappType,
		Link:        row.DappLink,
		Icon:        row.DappIcon,
	}}, nil
}

func (h *dapp) release(tx *types.Transaction) {
	if a := tx.Asset.Dapp; a != nil {
		h.names.release(a.Name)
		h.links.release(a.Link)
	}
}
