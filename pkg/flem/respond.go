// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flem

// Pack computes and stores the checksum and stamps the sync header.
// It must be the last step before transmission; any later change to the
// request, response or payload needs another Pack.
func (p *Packet) Pack() {
	p.Checksum(true)
	p.header = SyncHeader
}

// IsPacked reports whether the header is stamped and the stored checksum
// matches the current contents
func (p *Packet) IsPacked() bool {
	return p.header == SyncHeader && p.Validate()
}

// RespondWithData builds a SUCCESS response carrying payload and packs it.
// If the payload does not fit, the response is set to ERROR, the packet is
// not packed, and ErrPacketOverflow is returned.
func (p *Packet) RespondWithData(request uint8, payload []byte) error {
	p.request = request
	if err := p.SetPayload(payload); err != nil {
		p.response = ResponseError
		return err
	}
	p.response = ResponseSuccess
	p.Pack()
	return nil
}

// RespondWithError builds a payload-less response with the given code and
// packs it
func (p *Packet) RespondWithError(request, response uint8) {
	p.request = request
	p.response = response
	p.Pack()
}

// RespondWithIdentity answers an ID request with the encoded DataId.
// With ascii set the name is sent one byte per character (DataIdSize bytes);
// otherwise the wide form is used (WideDataIdSize bytes). Overflow follows
// the RespondWithData policy.
func (p *Packet) RespondWithIdentity(id DataId, ascii bool) error {
	return p.RespondWithData(RequestID, id.Encode(ascii))
}
