package lacore

/*------------------------------------------------------------------
 *
 * Purpose:	Tests for TriggerBuilder's policy enforcement and hardware
 *		encodings, spec.md section 4.4.
 *
 *------------------------------------------------------------------*/

import "testing"

func TestToDescriptorEmptyIsNoTrigger(t *testing.T) {
	var d, err = toDescriptor(TriggerDescription{}, 16, 0xffff, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.useTriggers {
		t.Fatal("empty trigger description should not enable triggers")
	}
}

func TestToDescriptorRejectsMultipleStages(t *testing.T) {
	var td = TriggerDescription{Stages: []Stage{{}, {}}}
	var _, err = toDescriptor(td, 16, 0xffff, false)
	var ce *CoreError
	if !asCoreError(err, &ce) || ce.Kind != KindUnsupported {
		t.Fatalf("expected an unsupported error, got %v", err)
	}
}

func TestToDescriptorRejectsLevelMatchInFastMode(t *testing.T) {
	var td = TriggerDescription{Stages: []Stage{{Matches: []Match{{Channel: 0, Kind: MatchOne}}}}}
	var _, err = toDescriptor(td, 4, 0xffff, true)
	var ce *CoreError
	if !asCoreError(err, &ce) || ce.Kind != KindUnsupported {
		t.Fatalf("expected an unsupported error, got %v", err)
	}
}

func TestToDescriptorRejectsTwoEdgesInFastMode(t *testing.T) {
	var td = TriggerDescription{Stages: []Stage{{Matches: []Match{
		{Channel: 0, Kind: MatchRising},
		{Channel: 1, Kind: MatchFalling},
	}}}}
	var _, err = toDescriptor(td, 4, 0xffff, true)
	var ce *CoreError
	if !asCoreError(err, &ce) || ce.Kind != KindUnsupported {
		t.Fatalf("expected an unsupported error, got %v", err)
	}
}

func TestToDescriptorAllowsOneRiseAndOneFallAtSlowMode(t *testing.T) {
	var td = TriggerDescription{Stages: []Stage{{Matches: []Match{
		{Channel: 0, Kind: MatchRising},
		{Channel: 1, Kind: MatchFalling},
	}}}}
	var d, err = toDescriptor(td, 16, 0xffff, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.risingMask != 0x01 || d.fallingMask != 0x02 {
		t.Fatalf("got rising=%#04x falling=%#04x", d.risingMask, d.fallingMask)
	}
	if !d.useTriggers {
		t.Fatal("expected useTriggers true")
	}
}

func TestToDescriptorIgnoresDisabledChannels(t *testing.T) {
	var td = TriggerDescription{Stages: []Stage{{Matches: []Match{{Channel: 2, Kind: MatchOne}}}}}
	var d, err = toDescriptor(td, 16, 0xfffb /* channel 2 disabled */, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.useTriggers {
		t.Fatal("a match on a disabled channel must not enable triggers")
	}
}

func TestToDescriptorRejectsOutOfRangeChannel(t *testing.T) {
	var td = TriggerDescription{Stages: []Stage{{Matches: []Match{{Channel: 20, Kind: MatchOne}}}}}
	var _, err = toDescriptor(td, 16, 0xffff, false)
	var ce *CoreError
	if !asCoreError(err, &ce) || ce.Kind != KindArgument {
		t.Fatalf("expected an argument error, got %v", err)
	}
}

func TestBuildSigmaFastTriggerInvertsFallingPolarity(t *testing.T) {
	var rise = triggerDescriptor{risingMask: 0x04}
	var ft, err = buildSigmaFastTrigger(rise)
	if err != nil || ft.PinPolRise {
		t.Fatalf("rising edge should not set PINPOL_RISE inverted, got %+v err=%v", ft, err)
	}
	if ft.Pin != 2 {
		t.Fatalf("got pin %d, want 2", ft.Pin)
	}

	var fall = triggerDescriptor{fallingMask: 0x08}
	ft, err = buildSigmaFastTrigger(fall)
	if err != nil || !ft.PinPolRise {
		t.Fatalf("falling edge should set PINPOL_RISE (inverted polarity), got %+v err=%v", ft, err)
	}
	if ft.Pin != 3 {
		t.Fatalf("got pin %d, want 3", ft.Pin)
	}
}

func TestBuildSigmaFastTriggerRejectsBothEdges(t *testing.T) {
	var d = triggerDescriptor{risingMask: 0x01, fallingMask: 0x02}
	var _, err = buildSigmaFastTrigger(d)
	var ce *CoreError
	if !asCoreError(err, &ce) || ce.Kind != KindUnsupported {
		t.Fatalf("expected an unsupported error, got %v", err)
	}
}

func TestBuildLA2016TriggerEncodesLevelAndEdge(t *testing.T) {
	var d = triggerDescriptor{
		valueMask:  0x01, // channel 0 level match
		valueBits:  0x01, // high
		risingMask: 0x02, // channel 1 rising edge
	}
	var w, err = buildLA2016Trigger(d, 0xffff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.TriggeringChannels&0x03 != 0x03 {
		t.Fatalf("expected both channels marked triggering, got %#08x", w.TriggeringChannels)
	}
	if w.LevelVsEdge&0x01 == 0 {
		t.Fatal("expected channel 0 marked as level")
	}
	if w.LevelVsEdge&0x02 != 0 {
		t.Fatal("channel 1 should be an edge, not a level")
	}
	if w.HighOrFalling&0x01 == 0 {
		t.Fatal("expected channel 0's high bit set")
	}
}

func TestBuildLA2016TriggerRejectsTwoEdgeChannels(t *testing.T) {
	var d = triggerDescriptor{risingMask: 0x01, fallingMask: 0x02}
	var _, err = buildLA2016Trigger(d, 0xffff)
	var ce *CoreError
	if !asCoreError(err, &ce) || ce.Kind != KindUnsupported {
		t.Fatalf("expected an unsupported error, got %v", err)
	}
}

func TestBuildTriggerSigmaSlowUploadsLUT(t *testing.T) {
	var td = TriggerDescription{Stages: []Stage{{Matches: []Match{{Channel: 0, Kind: MatchRising}}}}}
	var upload, err = BuildTrigger(FamilySigma, 50_000_000, 16, 0xffff, td)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var ft = &fakeTransport{}
	if err := upload(ft); err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if len(ft.writeLog) == 0 {
		t.Fatal("expected LUT upload to write registers")
	}
}

func TestBuildTriggerSigmaFastUploadsSingleRegister(t *testing.T) {
	var td = TriggerDescription{Stages: []Stage{{Matches: []Match{{Channel: 0, Kind: MatchRising}}}}}
	var upload, err = BuildTrigger(FamilySigma, 150_000_000, 4, 0xffff, td)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var ft = &fakeTransport{}
	if err := upload(ft); err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if len(ft.writeLog) != 1 {
		t.Fatalf("fast trigger upload should write exactly one register, got %d writes", len(ft.writeLog))
	}
}

func TestBuildTriggerLA2016UploadsFourWords(t *testing.T) {
	var td = TriggerDescription{Stages: []Stage{{Matches: []Match{{Channel: 0, Kind: MatchRising}}}}}
	var upload, err = BuildTrigger(FamilyLA2016, 100_000_000, 16, 0xffff, td)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var ft = &fakeTransport{}
	if err := upload(ft); err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if len(ft.ctrlOutLog) != 1 || len(ft.ctrlOutLog[0].data) != 16 {
		t.Fatalf("expected one 16-byte control-out, got %+v", ft.ctrlOutLog)
	}
}
