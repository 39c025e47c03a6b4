package replay

// raceScript is the JavaScript implementation of the dice and race loop —
// the same source a browser renderer ships. It is a second, independent
// implementation of the race rules, not a binding to the Go one: the only
// host function it receives is sha256Hex. Conformance tests hold the two
// runtimes to bit-identical outcomes.
const raceScript = `
'use strict';

var NIBBLES_PER_BLOCK = 64;

function Dice(seedHex) {
	if (typeof seedHex !== 'string' || !/^[0-9a-f]{64}$/.test(seedHex)) {
		throw new Error('dice: seed must be 64 lowercase hex characters');
	}
	this.entropy = seedHex;
	this.cursor = 0;
}

// One hex character is one 4-bit draw; the string already orders nibbles
// most-significant-first within each byte.
Dice.prototype.nextNibble = function () {
	if (this.cursor === NIBBLES_PER_BLOCK) {
		this.entropy = sha256Hex(this.entropy);
		this.cursor = 0;
	}
	var v = parseInt(this.entropy.charAt(this.cursor), 16);
	this.cursor++;
	return v;
};

Dice.prototype.roll = function (n) {
	if (n <= 0) {
		throw new RangeError('roll: n must be positive, got ' + n);
	}
	var bits = 0;
	var m = n - 1;
	while (m > 0) {
		bits++;
		m = Math.floor(m / 2);
	}
	var nibbles = Math.max(1, Math.ceil(bits / 4));
	var max = Math.pow(16, nibbles);
	var limit = max - (max % n);
	for (;;) {
		var candidate = 0;
		for (var i = 0; i < nibbles; i++) {
			candidate = candidate * 16 + this.nextNibble();
		}
		if (candidate < limit) {
			return candidate % n;
		}
	}
};

function clampScore(score) {
	if (score < 1) return 1;
	if (score > 10) return 10;
	return score;
}

function handicapBps(score, minBps) {
	score = clampScore(score);
	return minBps + Math.floor(((score - 1) * (10000 - minBps)) / 9);
}

// createRace returns a restartable per-tick frame source, which is what a
// renderer drives: call nextFrame() until frame.finished.
function createRace(seedHex, scores, cfg) {
	if (!scores || scores.length !== cfg.lanes) {
		throw new Error('race: expected ' + cfg.lanes + ' scores, got ' + (scores ? scores.length : 0));
	}
	var dice = new Dice(seedHex);
	var handicaps = [];
	var distances = [];
	var lane;
	for (lane = 0; lane < cfg.lanes; lane++) {
		handicaps.push(handicapBps(scores[lane], cfg.minHandicapBps));
		distances.push(0);
	}
	var tick = 0;
	var finished = false;

	return {
		nextFrame: function () {
			if (finished) {
				throw new Error('race: already finished');
			}
			if (tick >= cfg.maxTicks) {
				throw new Error('race: no lane reached the finish line within the tick cap');
			}
			for (var l = 0; l < cfg.lanes; l++) {
				var baseSpeed = dice.roll(cfg.speedRange) + 1;
				var raw = baseSpeed * handicaps[l];
				var q = Math.floor(raw / 10000);
				var rem = raw % 10000;
				if (rem > 0 && dice.roll(10000) < rem) {
					q++;
				}
				distances[l] += Math.max(1, q);
			}
			tick++;
			for (var k = 0; k < cfg.lanes; k++) {
				if (distances[k] >= cfg.trackLength) {
					finished = true;
					break;
				}
			}
			var winner = -1;
			if (finished) {
				var maxDistance = distances[0];
				for (var i = 1; i < cfg.lanes; i++) {
					if (distances[i] > maxDistance) maxDistance = distances[i];
				}
				var leaders = [];
				for (var j = 0; j < cfg.lanes; j++) {
					if (distances[j] === maxDistance) leaders.push(j);
				}
				winner = leaders.length === 1 ? leaders[0] : leaders[dice.roll(leaders.length)];
			}
			return {
				distances: distances.slice(),
				finished: finished,
				winner: winner
			};
		}
	};
}

function simulate(seedHex, scores, cfg) {
	var race = createRace(seedHex, scores, cfg);
	var ticks = [];
	for (;;) {
		var frame = race.nextFrame();
		ticks.push(frame.distances);
		if (frame.finished) {
			return { winner: frame.winner, ticks: ticks };
		}
	}
}
`
